package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

func TestDeactivatedAdmin_LosesAdminRights(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.addAdmin(t, "Admin")
	former := env.addAdmin(t, "Former")
	member := env.addActiveMember(t, "Matti")

	tx, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{
		Amount: mustDecimal(t, "5.00"),
	})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}

	// Deactivation keeps the admin role on the row but sends the member
	// back to pending.
	if _, err := env.directory.Deactivate(ctx, admin, former.ID); err != nil {
		t.Fatalf("deactivate admin: %v", err)
	}
	former = env.reload(t, former.ID)
	if former.Role != domain.RoleAdmin || former.Status != domain.MemberPending {
		t.Fatalf("expected pending admin, got %s/%s", former.Role, former.Status)
	}

	var fErr *domain.ErrForbidden
	if _, err := env.ledger.Approve(ctx, former, tx.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden approve for deactivated admin, got %v", err)
	}
	if _, err := env.ledger.Reject(ctx, former, tx.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden reject for deactivated admin, got %v", err)
	}
	if _, err := env.fiscal.ClosePeriod(ctx, former); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden period close for deactivated admin, got %v", err)
	}
	if _, err := env.directory.AddMember(ctx, former, &domain.NewMemberInput{
		TelegramID: 424242,
		FirstName:  "Uusi",
	}); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden add member for deactivated admin, got %v", err)
	}

	// The payment never moved and is still waiting for a real admin.
	pending, err := env.ledger.PendingTransactions(ctx, admin)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != tx.ID {
		t.Fatalf("expected the payment to stay pending, got %d transactions", len(pending))
	}
	assertDecimal(t, env.reload(t, member.ID).Balance, "0")
}

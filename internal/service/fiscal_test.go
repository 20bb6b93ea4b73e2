package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

// closeWithDebt sets up a member owing 15.00 and closes the period, returning
// the admin, the member, and the member's freshly created debt.
func closeWithDebt(t *testing.T, env *testEnv) (*domain.Member, *domain.Member, *domain.FiscalDebt) {
	t.Helper()
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")
	beer := env.addProduct(t, "Test Beer", "5.00")

	if _, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 3}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	result, err := env.fiscal.ClosePeriod(ctx, admin)
	if err != nil {
		t.Fatalf("close period: %v", err)
	}
	if result.DebtsCreated != 1 {
		t.Fatalf("expected 1 debt created, got %d", result.DebtsCreated)
	}
	env.sender.wait(t)

	debts, err := env.fiscal.MyDebts(ctx, member)
	if err != nil {
		t.Fatalf("list debts: %v", err)
	}
	if len(debts) != 1 {
		t.Fatalf("expected 1 open debt, got %d", len(debts))
	}
	return admin, member, &debts[0]
}

func TestClosePeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	debtor := env.addActiveMember(t, "Aino")
	creditor := env.addActiveMember(t, "Bertta")
	even := env.addActiveMember(t, "Cecilia")
	beer := env.addProduct(t, "Test Beer", "5.00")

	// Aino ends at -15.00.
	if _, err := env.ledger.RecordPurchase(ctx, debtor, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 3}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	// Bertta ends at +8.00.
	payment, err := env.ledger.RequestPayment(ctx, creditor, &domain.PaymentRequestInput{Amount: mustDecimal(t, "8.00")})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}
	if _, err := env.ledger.Approve(ctx, admin, payment.ID); err != nil {
		t.Fatalf("approve payment: %v", err)
	}
	env.sender.wait(t)

	before, err := env.fiscal.CurrentPeriod(ctx, admin)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}

	result, err := env.fiscal.ClosePeriod(ctx, admin)
	if err != nil {
		t.Fatalf("close period: %v", err)
	}
	env.sender.wait(t)

	if result.ClosedPeriodID != before.ID {
		t.Errorf("expected closed period %d, got %d", before.ID, result.ClosedPeriodID)
	}
	if result.DebtsCreated != 1 {
		t.Errorf("expected exactly 1 debt, got %d", result.DebtsCreated)
	}
	if result.NewPeriodID == before.ID {
		t.Error("expected a fresh period id")
	}

	// Only the negative balance becomes a debt, at its magnitude.
	debts, err := env.fiscal.PeriodDebts(ctx, admin, result.ClosedPeriodID)
	if err != nil {
		t.Fatalf("period debts: %v", err)
	}
	if len(debts) != 1 {
		t.Fatalf("expected 1 period debt, got %d", len(debts))
	}
	if debts[0].MemberID != debtor.ID {
		t.Errorf("expected debt on member %d, got %d", debtor.ID, debts[0].MemberID)
	}
	assertDecimal(t, debts[0].Amount, "15.00")
	if debts[0].Status != domain.DebtUnpaid {
		t.Errorf("expected unpaid debt, got %s", debts[0].Status)
	}

	// Every balance resets, positive ones included.
	for _, m := range []*domain.Member{debtor, creditor, even} {
		assertDecimal(t, env.reload(t, m.ID).Balance, "0")
	}

	// The old period is ended and a new open one is current.
	closed, err := env.store.GetPeriod(ctx, result.ClosedPeriodID)
	if err != nil {
		t.Fatalf("get closed period: %v", err)
	}
	if closed.EndedAt == nil {
		t.Error("expected closed period to carry ended_at")
	}
	current, err := env.fiscal.CurrentPeriod(ctx, admin)
	if err != nil {
		t.Fatalf("current period after close: %v", err)
	}
	if current.ID != result.NewPeriodID {
		t.Errorf("expected current period %d, got %d", result.NewPeriodID, current.ID)
	}
	if current.EndedAt != nil {
		t.Error("expected new period to be open")
	}
}

func TestClosePeriod_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	member := env.addActiveMember(t, "Matti")

	var fErr *domain.ErrForbidden
	if _, err := env.fiscal.ClosePeriod(context.Background(), member); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestDebtWorkflow_RequestApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, member, debt := closeWithDebt(t, env)

	requested, err := env.fiscal.RequestDebtPayment(ctx, member, debt.ID)
	if err != nil {
		t.Fatalf("request debt payment: %v", err)
	}
	if requested.Status != domain.DebtPaymentPending {
		t.Errorf("expected payment_pending, got %s", requested.Status)
	}

	pending, err := env.fiscal.PendingDebts(ctx, admin)
	if err != nil {
		t.Fatalf("pending debts: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != debt.ID {
		t.Fatalf("expected debt %d in pending list, got %v", debt.ID, pending)
	}

	paid, err := env.fiscal.ApproveDebtPayment(ctx, admin, debt.ID)
	if err != nil {
		t.Fatalf("approve debt payment: %v", err)
	}
	env.sender.wait(t)
	if paid.Status != domain.DebtPaid {
		t.Errorf("expected paid, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Error("expected paid_at to be stamped")
	}

	// Settled debts leave the member's open list.
	open, err := env.fiscal.MyDebts(ctx, member)
	if err != nil {
		t.Fatalf("list debts: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open debts, got %d", len(open))
	}
}

func TestDebtWorkflow_RejectReturnsToUnpaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, member, debt := closeWithDebt(t, env)

	if _, err := env.fiscal.RequestDebtPayment(ctx, member, debt.ID); err != nil {
		t.Fatalf("request debt payment: %v", err)
	}

	rejected, err := env.fiscal.RejectDebtPayment(ctx, admin, debt.ID)
	if err != nil {
		t.Fatalf("reject debt payment: %v", err)
	}
	env.sender.wait(t)
	if rejected.Status != domain.DebtUnpaid {
		t.Errorf("expected unpaid after reject, got %s", rejected.Status)
	}
	if rejected.PaidAt != nil {
		t.Error("expected paid_at to stay empty")
	}

	// The member can try again.
	if _, err := env.fiscal.RequestDebtPayment(ctx, member, debt.ID); err != nil {
		t.Errorf("expected re-request to succeed, got %v", err)
	}
}

func TestDebtWorkflow_MarkPaidSkipsRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, _, debt := closeWithDebt(t, env)

	paid, err := env.fiscal.MarkDebtPaid(ctx, admin, debt.ID)
	if err != nil {
		t.Fatalf("mark debt paid: %v", err)
	}
	env.sender.wait(t)
	if paid.Status != domain.DebtPaid {
		t.Errorf("expected paid, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Error("expected paid_at to be stamped")
	}

	// Paid is terminal.
	var stateErr *domain.ErrInvalidState
	if _, err := env.fiscal.MarkDebtPaid(ctx, admin, debt.ID); !errors.As(err, &stateErr) {
		t.Errorf("expected invalid state re-settling a paid debt, got %v", err)
	}
}

func TestDebtWorkflow_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, member, debt := closeWithDebt(t, env)
	other := env.addActiveMember(t, "Outsider")

	// Only the debtor can request payment on a debt.
	var fErr *domain.ErrForbidden
	if _, err := env.fiscal.RequestDebtPayment(ctx, other, debt.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden for another member's debt, got %v", err)
	}

	// Approve requires a prior request.
	var stateErr *domain.ErrInvalidState
	if _, err := env.fiscal.ApproveDebtPayment(ctx, admin, debt.ID); !errors.As(err, &stateErr) {
		t.Errorf("expected invalid state approving an unpaid debt, got %v", err)
	}

	// Approve and reject are admin actions.
	if _, err := env.fiscal.ApproveDebtPayment(ctx, member, debt.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden approving as member, got %v", err)
	}
	if _, err := env.fiscal.RejectDebtPayment(ctx, member, debt.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden rejecting as member, got %v", err)
	}
	if _, err := env.fiscal.MarkDebtPaid(ctx, member, debt.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden marking paid as member, got %v", err)
	}
}

func TestProfile_CombinesBalanceAndDebt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, member, debt := closeWithDebt(t, env)
	beer := env.addProduct(t, "New Period Beer", "4.00")

	// Fresh spending in the new period.
	if _, err := env.ledger.RecordPurchase(ctx, env.reload(t, member.ID), &domain.PurchaseInput{ProductID: beer.ID, Quantity: 1}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	profile, err := env.directory.Profile(ctx, env.reload(t, member.ID))
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	assertDecimal(t, profile.Balance, "-4.00")
	assertDecimal(t, profile.FiscalDebtTotal, "15.00")
	assertDecimal(t, profile.TotalBalance, "-19.00")

	// Settling the debt drops it from the totals.
	if _, err := env.fiscal.MarkDebtPaid(ctx, admin, debt.ID); err != nil {
		t.Fatalf("mark debt paid: %v", err)
	}
	env.sender.wait(t)

	profile, err = env.directory.Profile(ctx, env.reload(t, member.ID))
	if err != nil {
		t.Fatalf("profile after settle: %v", err)
	}
	assertDecimal(t, profile.FiscalDebtTotal, "0")
	assertDecimal(t, profile.TotalBalance, "-4.00")
}

func TestPeriodStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")
	beer := env.addProduct(t, "Test Beer", "5.00")

	if _, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 2}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	payment, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{Amount: mustDecimal(t, "4.00")})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}
	if _, err := env.ledger.Approve(ctx, admin, payment.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	env.sender.wait(t)

	result, err := env.fiscal.ClosePeriod(ctx, admin)
	if err != nil {
		t.Fatalf("close period: %v", err)
	}
	env.sender.wait(t)

	stats, err := env.fiscal.PeriodStats(ctx, admin, result.ClosedPeriodID)
	if err != nil {
		t.Fatalf("period stats: %v", err)
	}
	if stats.TotalPurchases != 1 {
		t.Errorf("expected 1 purchase, got %d", stats.TotalPurchases)
	}
	assertDecimal(t, stats.TotalPurchaseAmount, "10.00")
	if stats.TotalPayments != 1 {
		t.Errorf("expected 1 payment, got %d", stats.TotalPayments)
	}
	assertDecimal(t, stats.TotalPaymentAmount, "4.00")
	assertDecimal(t, stats.TotalDebt, "6.00")
	assertDecimal(t, stats.DebtOutstanding, "6.00")
	assertDecimal(t, stats.DebtCollected, "0")
}

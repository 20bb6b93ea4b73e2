package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

func TestRecordPurchase_AppliesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := env.addActiveMember(t, "Matti")
	beer := env.addProduct(t, "Test Beer", "2.50")

	tx, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{
		ProductID: beer.ID,
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	assertDecimal(t, tx.Amount, "-7.50")
	if tx.Status != domain.TransactionApproved {
		t.Errorf("expected purchase to be approved, got %s", tx.Status)
	}
	if tx.Quantity == nil || *tx.Quantity != 3 {
		t.Errorf("expected quantity 3, got %v", tx.Quantity)
	}
	if tx.UnitPrice == nil || !tx.UnitPrice.Equal(beer.Price) {
		t.Errorf("expected captured unit price %s, got %v", beer.Price, tx.UnitPrice)
	}

	assertDecimal(t, env.reload(t, member.ID).Balance, "-7.50")
}

func TestRecordPurchase_PriceCapturedAtPurchaseTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")
	beer := env.addProduct(t, "Test Beer", "2.00")

	tx, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	newPrice := mustDecimal(t, "5.00")
	if _, err := env.catalog.UpdateProduct(ctx, admin, beer.ID, &domain.ProductPatch{Price: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	history, err := env.ledger.MyTransactions(ctx, member)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(history))
	}
	if history[0].ID != tx.ID {
		t.Fatalf("expected transaction %d, got %d", tx.ID, history[0].ID)
	}
	assertDecimal(t, *history[0].UnitPrice, "2.00")
	assertDecimal(t, env.reload(t, member.ID).Balance, "-2.00")
}

func TestRecordPurchase_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := env.addActiveMember(t, "Matti")
	pending := env.addMemberWith(t, "Pena", domain.RoleMember, domain.MemberPending)
	beer := env.addProduct(t, "Test Beer", "2.50")

	var vErr *domain.ErrValidation
	_, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 0})
	if !errors.As(err, &vErr) {
		t.Errorf("expected validation error for zero quantity, got %v", err)
	}

	var nfErr *domain.ErrNotFound
	_, err = env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: 9999, Quantity: 1})
	if !errors.As(err, &nfErr) {
		t.Errorf("expected not found for unknown product, got %v", err)
	}

	var fErr *domain.ErrForbidden
	_, err = env.ledger.RecordPurchase(ctx, pending, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 1})
	if !errors.As(err, &fErr) {
		t.Errorf("expected forbidden for pending member, got %v", err)
	}
}

func TestRecordPurchase_SoftDeletedProductRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")
	beer := env.addProduct(t, "Test Beer", "2.50")

	if err := env.catalog.DeleteProduct(ctx, admin, beer.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	var nfErr *domain.ErrNotFound
	_, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 1})
	if !errors.As(err, &nfErr) {
		t.Errorf("expected not found for soft-deleted product, got %v", err)
	}
}

func TestRequestPayment_StaysPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := env.addActiveMember(t, "Matti")

	tx, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{
		Amount: mustDecimal(t, "10.00"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.TransactionPending {
		t.Errorf("expected pending status, got %s", tx.Status)
	}
	assertDecimal(t, tx.Amount, "10.00")

	// Balance must not move before approval.
	assertDecimal(t, env.reload(t, member.ID).Balance, "0")
}

func TestRequestPayment_RejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	member := env.addActiveMember(t, "Matti")

	for _, amount := range []string{"0", "-5.00"} {
		var vErr *domain.ErrValidation
		_, err := env.ledger.RequestPayment(context.Background(), member, &domain.PaymentRequestInput{
			Amount: mustDecimal(t, amount),
		})
		if !errors.As(err, &vErr) {
			t.Errorf("amount %s: expected validation error, got %v", amount, err)
		}
	}
}

func TestLogCashPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")

	tx, err := env.ledger.LogCashPayment(ctx, admin, &domain.CashPaymentInput{
		MemberID: member.ID,
		Amount:   mustDecimal(t, "15.00"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.MemberID != member.ID {
		t.Errorf("expected payment on member %d, got %d", member.ID, tx.MemberID)
	}
	if tx.CreatedByID != admin.ID {
		t.Errorf("expected created_by %d, got %d", admin.ID, tx.CreatedByID)
	}
	if tx.Status != domain.TransactionPending {
		t.Errorf("expected pending status, got %s", tx.Status)
	}

	var fErr *domain.ErrForbidden
	if _, err := env.ledger.LogCashPayment(ctx, member, &domain.CashPaymentInput{MemberID: admin.ID, Amount: mustDecimal(t, "1.00")}); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden for non-admin, got %v", err)
	}

	pending := env.addMemberWith(t, "Pena", domain.RoleMember, domain.MemberPending)
	var stateErr *domain.ErrInvalidState
	if _, err := env.ledger.LogCashPayment(ctx, admin, &domain.CashPaymentInput{MemberID: pending.ID, Amount: mustDecimal(t, "1.00")}); !errors.As(err, &stateErr) {
		t.Errorf("expected invalid state for inactive target, got %v", err)
	}
}

func TestApprove_AppliesBalanceOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")

	tx, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{Amount: mustDecimal(t, "12.00")})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}

	approved, err := env.ledger.Approve(ctx, admin, tx.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	env.sender.wait(t)

	if approved.Status != domain.TransactionApproved {
		t.Errorf("expected approved status, got %s", approved.Status)
	}
	if approved.ApprovedByID == nil || *approved.ApprovedByID != admin.ID {
		t.Errorf("expected approved_by %d, got %v", admin.ID, approved.ApprovedByID)
	}
	assertDecimal(t, env.reload(t, member.ID).Balance, "12.00")

	// A second approval must not apply the amount again.
	var stateErr *domain.ErrInvalidState
	if _, err := env.ledger.Approve(ctx, admin, tx.ID); !errors.As(err, &stateErr) {
		t.Errorf("expected invalid state on double approve, got %v", err)
	}
	assertDecimal(t, env.reload(t, member.ID).Balance, "12.00")
}

func TestReject_LeavesBalanceUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")

	tx, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{Amount: mustDecimal(t, "12.00")})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}

	rejected, err := env.ledger.Reject(ctx, admin, tx.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	env.sender.wait(t)

	if rejected.Status != domain.TransactionRejected {
		t.Errorf("expected rejected status, got %s", rejected.Status)
	}
	assertDecimal(t, env.reload(t, member.ID).Balance, "0")

	// Rejected transactions are terminal.
	var stateErr *domain.ErrInvalidState
	if _, err := env.ledger.Approve(ctx, admin, tx.ID); !errors.As(err, &stateErr) {
		t.Errorf("expected invalid state approving a rejected transaction, got %v", err)
	}
}

func TestApprovalWorkflow_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := env.addActiveMember(t, "Matti")

	tx, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{Amount: mustDecimal(t, "5.00")})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}

	var fErr *domain.ErrForbidden
	if _, err := env.ledger.Approve(ctx, member, tx.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden approving as member, got %v", err)
	}
	if _, err := env.ledger.Reject(ctx, member, tx.ID); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden rejecting as member, got %v", err)
	}
	if _, err := env.ledger.PendingTransactions(ctx, member); !errors.As(err, &fErr) {
		t.Errorf("expected forbidden listing pending as member, got %v", err)
	}
}

func TestPendingTransactions_ListsOnlyPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAdmin(t, "Admin")
	member := env.addActiveMember(t, "Matti")
	beer := env.addProduct(t, "Test Beer", "2.50")

	if _, err := env.ledger.RecordPurchase(ctx, member, &domain.PurchaseInput{ProductID: beer.ID, Quantity: 1}); err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	payment, err := env.ledger.RequestPayment(ctx, member, &domain.PaymentRequestInput{Amount: mustDecimal(t, "2.50")})
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}

	pending, err := env.ledger.PendingTransactions(ctx, admin)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", len(pending))
	}
	if pending[0].ID != payment.ID {
		t.Errorf("expected pending transaction %d, got %d", payment.ID, pending[0].ID)
	}
}

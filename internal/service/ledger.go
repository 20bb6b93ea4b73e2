package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

// defaultHistoryLimit bounds the member's own transaction listing.
const defaultHistoryLimit = 50

// LedgerService records purchases and payments and runs the approval
// workflow that moves pending payments onto balances.
type LedgerService struct {
	store     port.Store
	messaging *MessagingService
	cache     port.Cache[[]domain.Member]
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store port.Store, messaging *MessagingService, cache port.Cache[[]domain.Member], metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:     store,
		messaging: messaging,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// RecordPurchase — POST /v1/transactions/purchase
// ============================================================

// RecordPurchase logs a drink purchase against the actor's own tab. The
// amount is price times quantity, negated, and applies immediately: members
// are trusted for purchases, only money coming in needs approval.
func (s *LedgerService) RecordPurchase(ctx context.Context, actor *domain.Member, in *domain.PurchaseInput) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RecordPurchase")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", in.ProductID))
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("purchase", time.Since(start)) }()

	if err := requireActive(actor, "record purchase"); err != nil {
		return nil, err
	}
	if in.Quantity < 1 {
		return nil, &domain.ErrValidation{Field: "quantity", Message: "quantity must be at least 1"}
	}

	product, err := s.store.GetActiveProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	amount := product.Price.Mul(decimal.NewFromInt(int64(in.Quantity))).Neg()

	tx, err := s.store.CreatePurchase(ctx, actor.ID, product, in.Quantity, amount)
	if err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	s.metrics.IncrTransaction("purchase")
	s.cache.Delete(leaderboardCacheKey)
	s.logger.Info("purchase recorded",
		zap.Int64("member_id", actor.ID),
		zap.String("product", product.Name),
		zap.Int("quantity", in.Quantity),
		zap.String("amount", amount.String()),
	)
	return tx, nil
}

// ============================================================
// RequestPayment — POST /v1/transactions/payment-request
// ============================================================

// RequestPayment creates a pending payment on the actor's own tab. The
// balance does not move until an admin confirms the cash actually arrived.
func (s *LedgerService) RequestPayment(ctx context.Context, actor *domain.Member, in *domain.PaymentRequestInput) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RequestPayment")
	defer span.End()

	if err := requireActive(actor, "request payment"); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must be positive"}
	}

	tx, err := s.store.CreatePayment(ctx, actor.ID, actor.ID, in.Amount, in.Note)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.metrics.IncrTransaction("payment")
	s.logger.Info("payment requested",
		zap.Int64("member_id", actor.ID),
		zap.String("amount", in.Amount.String()),
	)
	return tx, nil
}

// ============================================================
// LogCashPayment — POST /v1/transactions/payment
// ============================================================

// LogCashPayment lets an admin record cash received from a member. It still
// lands as pending so both payment paths share the one approval step.
func (s *LedgerService) LogCashPayment(ctx context.Context, actor *domain.Member, in *domain.CashPaymentInput) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.LogCashPayment")
	defer span.End()

	if err := requireAdmin(actor, "log cash payment"); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must be positive"}
	}

	member, err := s.store.GetMemberByID(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive() {
		return nil, &domain.ErrInvalidState{Resource: "member", Current: string(member.Status), Action: "receive payment"}
	}

	tx, err := s.store.CreatePayment(ctx, member.ID, actor.ID, in.Amount, in.Note)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.metrics.IncrTransaction("payment")
	s.logger.Info("cash payment logged",
		zap.Int64("member_id", member.ID),
		zap.Int64("logged_by", actor.ID),
		zap.String("amount", in.Amount.String()),
	)
	return tx, nil
}

// ============================================================
// Listings
// ============================================================

func (s *LedgerService) MyTransactions(ctx context.Context, actor *domain.Member) ([]domain.Transaction, error) {
	if err := requireActive(actor, "list transactions"); err != nil {
		return nil, err
	}
	return s.store.ListMemberTransactions(ctx, actor.ID, defaultHistoryLimit)
}

func (s *LedgerService) PendingTransactions(ctx context.Context, actor *domain.Member) ([]domain.Transaction, error) {
	if err := requireAdmin(actor, "list pending transactions"); err != nil {
		return nil, err
	}
	return s.store.ListPendingTransactions(ctx)
}

// ============================================================
// Approve / Reject — PUT /v1/transactions/{id}/approve|reject
// ============================================================

// Approve confirms a pending payment and applies it to the member's balance.
// The member gets a notification once the transition commits.
func (s *LedgerService) Approve(ctx context.Context, actor *domain.Member, txID int64) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Approve")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", txID))

	if err := requireAdmin(actor, "approve transaction"); err != nil {
		return nil, err
	}

	tx, err := s.store.ApproveTransaction(ctx, txID, actor.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrApproval("approved")
	s.cache.Delete(leaderboardCacheKey)
	s.logger.Info("transaction approved",
		zap.Int64("tx_id", txID),
		zap.Int64("approved_by", actor.ID),
	)
	s.notifyOutcome(ctx, tx, domain.EventPaymentApproved)
	return tx, nil
}

// Reject declines a pending payment; the balance never moves.
func (s *LedgerService) Reject(ctx context.Context, actor *domain.Member, txID int64) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Reject")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", txID))

	if err := requireAdmin(actor, "reject transaction"); err != nil {
		return nil, err
	}

	tx, err := s.store.RejectTransaction(ctx, txID, actor.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrApproval("rejected")
	s.logger.Info("transaction rejected",
		zap.Int64("tx_id", txID),
		zap.Int64("rejected_by", actor.ID),
	)
	s.notifyOutcome(ctx, tx, domain.EventPaymentRejected)
	return tx, nil
}

// MetricsSnapshot serves the admin counter overview.
func (s *LedgerService) MetricsSnapshot(actor *domain.Member) (*domain.LedgerMetrics, error) {
	if err := requireAdmin(actor, "view ledger metrics"); err != nil {
		return nil, err
	}
	return s.metrics.GetLedgerSnapshot(), nil
}

func (s *LedgerService) notifyOutcome(ctx context.Context, tx *domain.Transaction, event domain.EventType) {
	member, err := s.store.GetMemberByID(ctx, tx.MemberID)
	if err != nil {
		s.logger.Error("load member for notification failed",
			zap.Int64("member_id", tx.MemberID),
			zap.Error(err),
		)
		return
	}
	s.messaging.Dispatch(event, Notification{
		TelegramID: member.TelegramID,
		UserName:   member.DisplayName(),
		Amount:     tx.Amount,
	})
}

package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
)

var fiscalTracer = otel.Tracer("service/fiscal")

// FiscalService manages accounting periods and the debts a period close
// leaves behind.
type FiscalService struct {
	store     port.Store
	messaging *MessagingService
	cache     port.Cache[[]domain.Member]
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewFiscalService creates a new fiscal service.
func NewFiscalService(store port.Store, messaging *MessagingService, cache port.Cache[[]domain.Member], metrics *observability.Metrics, logger *zap.Logger) *FiscalService {
	return &FiscalService{
		store:     store,
		messaging: messaging,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// Periods
// ============================================================

func (s *FiscalService) CurrentPeriod(ctx context.Context, actor *domain.Member) (*domain.FiscalPeriod, error) {
	if err := requireActive(actor, "view current period"); err != nil {
		return nil, err
	}
	return s.store.GetCurrentPeriod(ctx)
}

func (s *FiscalService) ListPeriods(ctx context.Context, actor *domain.Member) ([]domain.FiscalPeriod, error) {
	if err := requireAdmin(actor, "list fiscal periods"); err != nil {
		return nil, err
	}
	return s.store.ListPeriods(ctx)
}

func (s *FiscalService) PeriodStats(ctx context.Context, actor *domain.Member, periodID int64) (*domain.PeriodStats, error) {
	if err := requireAdmin(actor, "view period stats"); err != nil {
		return nil, err
	}
	return s.store.GetPeriodStats(ctx, periodID)
}

func (s *FiscalService) PeriodDebts(ctx context.Context, actor *domain.Member, periodID int64) ([]domain.FiscalDebt, error) {
	if err := requireAdmin(actor, "list period debts"); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return s.store.ListPeriodDebts(ctx, periodID)
}

// ============================================================
// ClosePeriod — POST /v1/fiscal-periods/close
// ============================================================

// ClosePeriod ends the open period: members in the red get a tracked debt
// for what they owe, every active balance resets to zero, and a fresh period
// opens. The whole close commits atomically; debtor notifications go out
// after the commit so a send failure can never roll the close back.
func (s *FiscalService) ClosePeriod(ctx context.Context, actor *domain.Member) (*domain.CloseResult, error) {
	ctx, span := fiscalTracer.Start(ctx, "FiscalService.ClosePeriod")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("period_close", time.Since(start)) }()

	if err := requireAdmin(actor, "close fiscal period"); err != nil {
		return nil, err
	}

	result, debts, err := s.store.ClosePeriod(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPeriodClose(result.DebtsCreated)
	s.cache.Delete(leaderboardCacheKey)
	s.logger.Info("fiscal period closed",
		zap.Int64("closed_period_id", result.ClosedPeriodID),
		zap.Int64("new_period_id", result.NewPeriodID),
		zap.Int("debts_created", result.DebtsCreated),
		zap.Int64("closed_by", actor.ID),
	)

	notifications := make([]Notification, 0, len(debts))
	for _, d := range debts {
		notifications = append(notifications, Notification{
			TelegramID: d.MemberTelegramID,
			UserName:   d.MemberName,
			Amount:     d.Amount,
		})
	}
	s.messaging.DispatchBulk(domain.EventFiscalPeriodClosed, notifications)

	return result, nil
}

// ============================================================
// Debts
// ============================================================

func (s *FiscalService) MyDebts(ctx context.Context, actor *domain.Member) ([]domain.FiscalDebt, error) {
	if err := requireActive(actor, "list own debts"); err != nil {
		return nil, err
	}
	return s.store.ListMemberOpenDebts(ctx, actor.ID)
}

func (s *FiscalService) PendingDebts(ctx context.Context, actor *domain.Member) ([]domain.FiscalDebt, error) {
	if err := requireAdmin(actor, "list pending debts"); err != nil {
		return nil, err
	}
	return s.store.ListPendingDebts(ctx)
}

// RequestDebtPayment marks the actor's own unpaid debt as awaiting admin
// confirmation.
func (s *FiscalService) RequestDebtPayment(ctx context.Context, actor *domain.Member, debtID int64) (*domain.FiscalDebt, error) {
	ctx, span := fiscalTracer.Start(ctx, "FiscalService.RequestDebtPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("debt.id", debtID))

	if err := requireActive(actor, "request debt payment"); err != nil {
		return nil, err
	}

	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.MemberID != actor.ID {
		return nil, &domain.ErrForbidden{Action: "request payment on another member's debt"}
	}

	updated, err := s.store.TransitionDebt(ctx, debtID,
		[]domain.DebtStatus{domain.DebtUnpaid}, domain.DebtPaymentPending, false)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrDebtTransition(string(domain.DebtPaymentPending))
	s.logger.Info("debt payment requested",
		zap.Int64("debt_id", debtID),
		zap.Int64("member_id", actor.ID),
	)
	return updated, nil
}

// ApproveDebtPayment confirms the cash arrived; the debt is settled.
func (s *FiscalService) ApproveDebtPayment(ctx context.Context, actor *domain.Member, debtID int64) (*domain.FiscalDebt, error) {
	ctx, span := fiscalTracer.Start(ctx, "FiscalService.ApproveDebtPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("debt.id", debtID))

	if err := requireAdmin(actor, "approve debt payment"); err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionDebt(ctx, debtID,
		[]domain.DebtStatus{domain.DebtPaymentPending}, domain.DebtPaid, true)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrDebtTransition(string(domain.DebtPaid))
	s.logger.Info("debt payment approved",
		zap.Int64("debt_id", debtID),
		zap.Int64("approved_by", actor.ID),
	)
	s.notifyDebt(updated, domain.EventDebtPaymentApproved)
	return updated, nil
}

// RejectDebtPayment sends the debt back to unpaid.
func (s *FiscalService) RejectDebtPayment(ctx context.Context, actor *domain.Member, debtID int64) (*domain.FiscalDebt, error) {
	ctx, span := fiscalTracer.Start(ctx, "FiscalService.RejectDebtPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("debt.id", debtID))

	if err := requireAdmin(actor, "reject debt payment"); err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionDebt(ctx, debtID,
		[]domain.DebtStatus{domain.DebtPaymentPending}, domain.DebtUnpaid, false)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrDebtTransition(string(domain.DebtUnpaid))
	s.logger.Info("debt payment rejected",
		zap.Int64("debt_id", debtID),
		zap.Int64("rejected_by", actor.ID),
	)
	s.notifyDebt(updated, domain.EventDebtPaymentRejected)
	return updated, nil
}

// MarkDebtPaid settles a debt directly, skipping the member-initiated
// request step. Covers cash handed over in person.
func (s *FiscalService) MarkDebtPaid(ctx context.Context, actor *domain.Member, debtID int64) (*domain.FiscalDebt, error) {
	ctx, span := fiscalTracer.Start(ctx, "FiscalService.MarkDebtPaid")
	defer span.End()
	span.SetAttributes(attribute.Int64("debt.id", debtID))

	if err := requireAdmin(actor, "mark debt paid"); err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionDebt(ctx, debtID,
		[]domain.DebtStatus{domain.DebtUnpaid, domain.DebtPaymentPending}, domain.DebtPaid, true)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrDebtTransition(string(domain.DebtPaid))
	s.logger.Info("debt marked paid",
		zap.Int64("debt_id", debtID),
		zap.Int64("by", actor.ID),
	)
	s.notifyDebt(updated, domain.EventDebtPaymentApproved)
	return updated, nil
}

func (s *FiscalService) notifyDebt(debt *domain.FiscalDebt, event domain.EventType) {
	if debt.MemberTelegramID == 0 {
		s.logger.Warn("debt missing telegram id, notification skipped",
			zap.Int64("debt_id", debt.ID),
		)
		return
	}
	s.messaging.Dispatch(event, Notification{
		TelegramID: debt.MemberTelegramID,
		UserName:   debt.MemberName,
		Amount:     debt.Amount,
	})
}

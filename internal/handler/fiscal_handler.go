package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// ============================================================
// Fiscal periods — /v1/fiscal-periods
// ============================================================

func currentPeriodHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/fiscal-periods/current")
		defer span.End()

		period, err := svc.CurrentPeriod(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, period)
	}
}

func listPeriodsHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/fiscal-periods")
		defer span.End()

		periods, err := svc.ListPeriods(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fiscal_periods": periods})
	}
}

func closePeriodHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/fiscal-periods/close")
		defer span.End()

		result, err := svc.ClosePeriod(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func periodStatsHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/fiscal-periods/{periodId}/stats")
		defer span.End()

		id, err := idParam(r, "periodId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		stats, err := svc.PeriodStats(ctx, MemberFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func periodDebtsHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/fiscal-periods/{periodId}/debts")
		defer span.End()

		id, err := idParam(r, "periodId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		debts, err := svc.PeriodDebts(ctx, MemberFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"debts": debts})
	}
}

// ============================================================
// Debts — /v1/my/debts, /v1/fiscal-debts
// ============================================================

func myDebtsHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/my/debts")
		defer span.End()

		debts, err := svc.MyDebts(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"debts": debts})
	}
}

func pendingDebtsHandler(svc *service.FiscalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/fiscal-debts/pending")
		defer span.End()

		debts, err := svc.PendingDebts(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"debts": debts})
	}
}

// debtTransitionHandler covers the four debt workflow endpoints that share a
// shape: PUT /v1/fiscal-debts/{debtId}/<action>.
func debtTransitionHandler(fn func(context.Context, *domain.Member, int64) (*domain.FiscalDebt, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/fiscal-debts/{debtId}")
		defer span.End()

		id, err := idParam(r, "debtId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		debt, err := fn(ctx, MemberFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, debt)
	}
}

package handler

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// ============================================================
// Purchases & payments — /v1/transactions
// ============================================================

func purchaseHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/purchase")
		defer span.End()

		var in domain.PurchaseInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if in.Quantity == 0 {
			in.Quantity = 1
		}
		span.SetAttributes(attribute.Int64("product.id", in.ProductID))

		tx, err := svc.RecordPurchase(ctx, MemberFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func paymentRequestHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/payment-request")
		defer span.End()

		var in domain.PaymentRequestInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tx, err := svc.RequestPayment(ctx, MemberFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func cashPaymentHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/payment")
		defer span.End()

		var in domain.CashPaymentInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tx, err := svc.LogCashPayment(ctx, MemberFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func myTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/mine")
		defer span.End()

		txs, err := svc.MyTransactions(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
	}
}

func pendingTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/pending")
		defer span.End()

		txs, err := svc.PendingTransactions(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
	}
}

// ============================================================
// Approvals — PUT /v1/transactions/{txId}/approve|reject
// ============================================================

func approveTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/transactions/{txId}/approve")
		defer span.End()

		id, err := idParam(r, "txId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := svc.Approve(ctx, MemberFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func rejectTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/transactions/{txId}/reject")
		defer span.End()

		id, err := idParam(r, "txId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := svc.Reject(ctx, MemberFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

// ============================================================
// Metrics — GET /v1/metrics/ledger
// ============================================================

func ledgerMetricsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := svc.MetricsSnapshot(MemberFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

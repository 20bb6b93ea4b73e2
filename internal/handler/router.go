// Package handler wires the ledger services to their HTTP surface: a chi
// router, the auth middleware, and one handler constructor per endpoint.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the router needs.
type Services struct {
	Auth      *service.AuthService
	Directory *service.DirectoryService
	Catalog   *service.CatalogService
	Ledger    *service.LedgerService
	Fiscal    *service.FiscalService
	Messaging *service.MessagingService
}

// NewRouter creates the HTTP router with all routes and middleware. The API
// is served under /v1; every /v1 route requires authentication, and the
// services decide what each role may do.
func NewRouter(svcs Services, store port.Store, metrics *observability.Metrics, corsOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(svcs.Auth, logger))

		// =============================================
		// Identity
		// =============================================
		r.Post("/auth/token", issueTokenHandler(svcs.Auth, logger))
		r.Get("/me", meHandler(svcs.Directory, logger))

		// =============================================
		// Roster & leaderboard
		// =============================================
		r.Get("/leaderboard", leaderboardHandler(svcs.Directory, logger))
		r.Route("/members", func(r chi.Router) {
			r.Get("/", listMembersHandler(svcs.Directory, logger))
			r.Post("/", addMemberHandler(svcs.Directory, logger))
			r.Post("/deactivate-all", deactivateAllHandler(svcs.Directory, logger))
			r.Put("/{memberId}/activate", memberLifecycleHandler(svcs.Directory.Activate, logger))
			r.Put("/{memberId}/deactivate", memberLifecycleHandler(svcs.Directory.Deactivate, logger))
			r.Put("/{memberId}/promote", memberLifecycleHandler(svcs.Directory.Promote, logger))
			r.Put("/{memberId}/demote", memberLifecycleHandler(svcs.Directory.Demote, logger))
		})

		// =============================================
		// Catalog
		// =============================================
		r.Route("/products", func(r chi.Router) {
			r.Get("/", listProductsHandler(svcs.Catalog, logger))
			r.Get("/all", listAllProductsHandler(svcs.Catalog, logger))
			r.Post("/", createProductHandler(svcs.Catalog, logger))
			r.Patch("/{productId}", updateProductHandler(svcs.Catalog, logger))
			r.Delete("/{productId}", deleteProductHandler(svcs.Catalog, logger))
		})

		// =============================================
		// Transactions
		// =============================================
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/purchase", purchaseHandler(svcs.Ledger, logger))
			r.Post("/payment-request", paymentRequestHandler(svcs.Ledger, logger))
			r.Post("/payment", cashPaymentHandler(svcs.Ledger, logger))
			r.Get("/mine", myTransactionsHandler(svcs.Ledger, logger))
			r.Get("/pending", pendingTransactionsHandler(svcs.Ledger, logger))
			r.Put("/{txId}/approve", approveTransactionHandler(svcs.Ledger, logger))
			r.Put("/{txId}/reject", rejectTransactionHandler(svcs.Ledger, logger))
		})

		// =============================================
		// Fiscal periods & debts
		// =============================================
		r.Route("/fiscal-periods", func(r chi.Router) {
			r.Get("/", listPeriodsHandler(svcs.Fiscal, logger))
			r.Get("/current", currentPeriodHandler(svcs.Fiscal, logger))
			r.Post("/close", closePeriodHandler(svcs.Fiscal, logger))
			r.Get("/{periodId}/stats", periodStatsHandler(svcs.Fiscal, logger))
			r.Get("/{periodId}/debts", periodDebtsHandler(svcs.Fiscal, logger))
		})
		r.Get("/my/debts", myDebtsHandler(svcs.Fiscal, logger))
		r.Route("/fiscal-debts", func(r chi.Router) {
			r.Get("/pending", pendingDebtsHandler(svcs.Fiscal, logger))
			r.Put("/{debtId}/request-payment", debtTransitionHandler(svcs.Fiscal.RequestDebtPayment, logger))
			r.Put("/{debtId}/approve", debtTransitionHandler(svcs.Fiscal.ApproveDebtPayment, logger))
			r.Put("/{debtId}/reject", debtTransitionHandler(svcs.Fiscal.RejectDebtPayment, logger))
			r.Put("/{debtId}/mark-paid", debtTransitionHandler(svcs.Fiscal.MarkDebtPaid, logger))
		})

		// =============================================
		// Message templates & metrics
		// =============================================
		r.Get("/message-templates", listTemplatesHandler(svcs.Messaging, logger))
		r.Put("/message-templates/{templateId}", updateTemplateHandler(svcs.Messaging, logger))
		r.Get("/metrics/ledger", ledgerMetricsHandler(svcs.Ledger, logger))
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(store port.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := "healthy"
		httpStatus := http.StatusOK
		if err := store.Ping(r.Context()); err != nil {
			logger.Error("healthz: storage unreachable", zap.Error(err))
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
		writeJSON(w, httpStatus, map[string]any{
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"checked_at": time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

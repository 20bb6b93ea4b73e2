package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	transactionsTotal  *prometheus.CounterVec
	approvalsTotal     *prometheus.CounterVec
	periodClosesTotal  prometheus.Counter
	debtsCreatedTotal  prometheus.Counter
	debtTransitions    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "piikki_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piikki_transactions_total",
				Help: "Ledger transactions created, by type.",
			},
			[]string{"type"},
		),
		approvalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piikki_approvals_total",
				Help: "Admin approval decisions on pending transactions.",
			},
			[]string{"outcome"},
		),
		periodClosesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "piikki_period_closes_total",
				Help: "Fiscal periods closed.",
			},
		),
		debtsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "piikki_debts_created_total",
				Help: "Fiscal debts created by period closes.",
			},
		),
		debtTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piikki_debt_transitions_total",
				Help: "Fiscal debt status transitions.",
			},
			[]string{"to"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piikki_notifications_total",
				Help: "Notification dispatch results.",
			},
			[]string{"status"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piikki_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piikki_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTransaction counts a created ledger transaction.
func (m *Metrics) IncrTransaction(txType string) {
	m.transactionsTotal.WithLabelValues(txType).Inc()
}

// IncrApproval counts an approval decision ("approved" or "rejected").
func (m *Metrics) IncrApproval(outcome string) {
	m.approvalsTotal.WithLabelValues(outcome).Inc()
}

// RecordPeriodClose counts a period close and the debts it created.
func (m *Metrics) RecordPeriodClose(debtsCreated int) {
	m.periodClosesTotal.Inc()
	m.debtsCreatedTotal.Add(float64(debtsCreated))
}

// IncrDebtTransition counts a fiscal debt status transition.
func (m *Metrics) IncrDebtTransition(to string) {
	m.debtTransitions.WithLabelValues(to).Inc()
}

// IncrNotification counts a notification dispatch result
// ("sent", "failed" or "suppressed").
func (m *Metrics) IncrNotification(status string) {
	m.notificationsTotal.WithLabelValues(status).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetLedgerSnapshot returns cumulative counter values for the admin
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	cacheHits := getCounterValue(m.cacheHits, "leaderboard") + getCounterValue(m.cacheHits, "products")
	cacheMisses := getCounterValue(m.cacheMisses, "leaderboard") + getCounterValue(m.cacheMisses, "products")

	hitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		hitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.LedgerMetrics{
		PurchasesRecorded:    int64(getCounterValue(m.transactionsTotal, "purchase")),
		PaymentsCreated:      int64(getCounterValue(m.transactionsTotal, "payment")),
		TransactionsApproved: int64(getCounterValue(m.approvalsTotal, "approved")),
		TransactionsRejected: int64(getCounterValue(m.approvalsTotal, "rejected")),
		PeriodCloses:         int64(counterValue(m.periodClosesTotal)),
		DebtsCreated:         int64(counterValue(m.debtsCreatedTotal)),
		NotificationsSent:    int64(getCounterValue(m.notificationsTotal, "sent")),
		NotificationsFailed:  int64(getCounterValue(m.notificationsTotal, "failed")),
		CacheHitRate:         hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

package domain

import "time"

// EventType enumerates the ledger state changes that can notify a member.
type EventType string

const (
	EventPaymentApproved     EventType = "payment_approved"
	EventPaymentRejected     EventType = "payment_rejected"
	EventFiscalPeriodClosed  EventType = "fiscal_period_closed"
	EventDebtPaymentApproved EventType = "debt_payment_approved"
	EventDebtPaymentRejected EventType = "debt_payment_rejected"
)

// MessageTemplate is the admin-editable text for one event type. Placeholders
// {user} and {amount} are substituted at dispatch time. A missing or inactive
// template silently suppresses the notification.
type MessageTemplate struct {
	ID        int64     `json:"id"`
	EventType EventType `json:"event_type"`
	Template  string    `json:"template"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplatePatch is a partial template update.
type TemplatePatch struct {
	Template *string `json:"template,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// LedgerMetrics is the counter snapshot served to admins.
type LedgerMetrics struct {
	PurchasesRecorded    int64   `json:"purchases_recorded"`
	PaymentsCreated      int64   `json:"payments_created"`
	TransactionsApproved int64   `json:"transactions_approved"`
	TransactionsRejected int64   `json:"transactions_rejected"`
	PeriodCloses         int64   `json:"period_closes"`
	DebtsCreated         int64   `json:"debts_created"`
	NotificationsSent    int64   `json:"notifications_sent"`
	NotificationsFailed  int64   `json:"notifications_failed"`
	CacheHitRate         float64 `json:"cache_hit_rate"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FiscalPeriod is an accounting window. Exactly one period is open
// (ended_at null) at any time; periods are contiguous and non-overlapping —
// a new one starts the instant the previous one closes.
type FiscalPeriod struct {
	ID        int64      `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// DebtStatus tracks a fiscal debt through its payment workflow.
type DebtStatus string

const (
	DebtUnpaid         DebtStatus = "unpaid"
	DebtPaymentPending DebtStatus = "payment_pending"
	DebtPaid           DebtStatus = "paid"
)

// debtTransitions encodes the legal debt status moves:
// unpaid → payment_pending (member requests), payment_pending → paid
// (admin approves), payment_pending → unpaid (admin rejects), and
// unpaid → paid directly (admin mark-paid without a request).
var debtTransitions = map[DebtStatus][]DebtStatus{
	DebtUnpaid:         {DebtPaymentPending, DebtPaid},
	DebtPaymentPending: {DebtPaid, DebtUnpaid},
}

// CanTransition reports whether a debt may move from one status to another.
// Paid is terminal.
func (s DebtStatus) CanTransition(to DebtStatus) bool {
	for _, next := range debtTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// FiscalDebt is a member's obligation from a closed period: the magnitude of
// their negative balance at close time. The amount is immutable; only the
// status and paid_at advance.
type FiscalDebt struct {
	ID             int64           `json:"id"`
	FiscalPeriodID int64           `json:"fiscal_period_id"`
	MemberID       int64           `json:"member_id"`
	MemberName     string          `json:"member_name"`
	Amount         decimal.Decimal `json:"amount"`
	Status         DebtStatus      `json:"status"`
	PaidAt         *time.Time      `json:"paid_at"`
	CreatedAt      time.Time       `json:"created_at"`

	PeriodStartedAt time.Time  `json:"period_started_at"`
	PeriodEndedAt   *time.Time `json:"period_ended_at"`

	// Needed by the notification dispatcher; not serialized.
	MemberTelegramID int64 `json:"-"`
}

// PeriodStats aggregates a period's activity: approved transactions within
// the period window plus the debts the close created.
type PeriodStats struct {
	ID                  int64           `json:"id"`
	StartedAt           time.Time       `json:"started_at"`
	EndedAt             *time.Time      `json:"ended_at"`
	TotalPurchases      int             `json:"total_purchases"`
	TotalPurchaseAmount decimal.Decimal `json:"total_purchase_amount"`
	TotalPayments       int             `json:"total_payments"`
	TotalPaymentAmount  decimal.Decimal `json:"total_payment_amount"`
	TotalDebt           decimal.Decimal `json:"total_debt"`
	DebtCollected       decimal.Decimal `json:"debt_collected"`
	DebtOutstanding     decimal.Decimal `json:"debt_outstanding"`
}

// CloseResult reports what a period close did.
type CloseResult struct {
	ClosedPeriodID int64 `json:"closed_period_id"`
	DebtsCreated   int   `json:"debts_created"`
	NewPeriodID    int64 `json:"new_period_id"`
}

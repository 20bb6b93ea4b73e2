package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes drink purchases from cash payments.
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionPayment  TransactionType = "payment"
)

// TransactionStatus is the approval state. Purchases are created directly in
// approved; payments start pending and terminate in approved or rejected.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionApproved TransactionStatus = "approved"
	TransactionRejected TransactionStatus = "rejected"
)

// transactionTransitions encodes the legal status transitions. Anything not
// listed here is rejected regardless of what the caller asks for.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending: {TransactionApproved, TransactionRejected},
}

// CanTransition reports whether a transaction may move from one status to
// another. Approved and rejected are terminal.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	for _, next := range transactionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is a ledger entry. Amounts are signed from the member's
// perspective: purchases negative, payments positive. Only approved
// transactions count toward the balance. Immutable once approved or rejected.
//
// Purchases capture the unit price at creation time; later catalog price
// edits never change history.
type Transaction struct {
	ID           int64             `json:"id"`
	MemberID     int64             `json:"member_id"`
	ProductID    *int64            `json:"product_id"`
	Type         TransactionType   `json:"type"`
	Quantity     *int              `json:"quantity,omitempty"`
	UnitPrice    *decimal.Decimal  `json:"unit_price,omitempty"`
	Amount       decimal.Decimal   `json:"amount"`
	Status       TransactionStatus `json:"status"`
	ApprovedByID *int64            `json:"approved_by_id"`
	CreatedByID  int64             `json:"created_by_id"`
	Note         *string           `json:"note"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	// Denormalized display fields for list endpoints.
	ProductName *string `json:"product_name"`
	MemberName  string  `json:"member_name"`
}

// PurchaseInput is the member-facing purchase payload.
type PurchaseInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// PaymentRequestInput is the member-facing payment request payload.
type PaymentRequestInput struct {
	Amount decimal.Decimal `json:"amount"`
	Note   *string         `json:"note,omitempty"`
}

// CashPaymentInput is the admin-facing payload for logging a cash payment
// received from a member. It still lands as pending so that both payment
// paths share the single approval step.
type CashPaymentInput struct {
	MemberID int64           `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
	Note     *string         `json:"note,omitempty"`
}

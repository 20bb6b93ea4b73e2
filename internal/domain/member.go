// Package domain holds the core entities of the club tab ledger and the
// state-transition rules that gate every mutation.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role determines what a member is allowed to do.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// MemberStatus is the directory lifecycle state. A pending member can only
// read their own profile; everything else requires active status.
type MemberStatus string

const (
	MemberPending MemberStatus = "pending"
	MemberActive  MemberStatus = "active"
)

// Member is a registered user of the ledger. Balance covers the current open
// fiscal period only; it is always the sum of the member's approved
// transaction amounts within that period.
type Member struct {
	ID         int64           `json:"id"`
	TelegramID int64           `json:"telegram_id"`
	FirstName  string          `json:"first_name"`
	LastName   *string         `json:"last_name"`
	Username   *string         `json:"username"`
	Role       Role            `json:"role"`
	Status     MemberStatus    `json:"status"`
	Balance    decimal.Decimal `json:"balance"`
	AddedByID  *int64          `json:"added_by_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// IsAdmin reports whether the member holds the admin role.
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// IsActive reports whether the member may act on the ledger.
func (m *Member) IsActive() bool {
	return m.Status == MemberActive
}

// DisplayName returns the name used in notifications and listings.
func (m *Member) DisplayName() string {
	return m.FirstName
}

// Profile is the member's own view: the current-period balance plus what is
// still owed from closed periods.
type Profile struct {
	Member
	FiscalDebtTotal decimal.Decimal `json:"fiscal_debt_total"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
}

// NewMemberInput is the payload for admin member creation (whitelist model)
// and for self-registration on first authenticated contact.
type NewMemberInput struct {
	TelegramID int64   `json:"telegram_id"`
	FirstName  string  `json:"first_name"`
	LastName   *string `json:"last_name,omitempty"`
	Username   *string `json:"username,omitempty"`
}

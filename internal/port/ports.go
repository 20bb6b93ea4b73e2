// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

// MemberStore manages the member directory.
type MemberStore interface {
	// GetMemberByTelegramID returns (nil, nil) when no such member exists,
	// so the auth layer can distinguish "unknown identity" from a failure.
	GetMemberByTelegramID(ctx context.Context, telegramID int64) (*domain.Member, error)
	GetMemberByID(ctx context.Context, id int64) (*domain.Member, error)
	CreateMember(ctx context.Context, in *domain.NewMemberInput, role domain.Role, status domain.MemberStatus, addedByID *int64) (*domain.Member, error)
	// UpdateMemberIdentity refreshes name/handle fields from the platform
	// identity on login; ledger fields are untouched.
	UpdateMemberIdentity(ctx context.Context, id int64, firstName string, lastName, username *string) error
	ListMembers(ctx context.Context) ([]domain.Member, error)
	// ListLeaderboard returns active members ordered by balance descending,
	// ties broken by ascending member id.
	ListLeaderboard(ctx context.Context) ([]domain.Member, error)
	ActivateMember(ctx context.Context, id int64) (*domain.Member, error)
	// DeactivateMember flips the member back to pending and zeroes the
	// balance in the same transaction. Fails when it would remove the last
	// active admin.
	DeactivateMember(ctx context.Context, id int64) (*domain.Member, error)
	PromoteMember(ctx context.Context, id int64) (*domain.Member, error)
	// DemoteMember fails when the target is the last active admin.
	DemoteMember(ctx context.Context, id int64) (*domain.Member, error)
	// DeactivateAllMembers bulk-deactivates every non-admin member and
	// zeroes their balances atomically; returns how many were affected.
	DeactivateAllMembers(ctx context.Context) (int, error)
}

// ProductStore manages the purchasable catalog.
type ProductStore interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetActiveProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, in *domain.NewProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch *domain.ProductPatch) (*domain.Product, error)
	// SoftDeleteProduct sets is_active=false; history references survive.
	SoftDeleteProduct(ctx context.Context, id int64) error
}

// TransactionStore manages the ledger entries and the balance they drive.
// Every method that touches a balance runs as one storage transaction.
type TransactionStore interface {
	// CreatePurchase inserts an approved purchase with the captured unit
	// price and adjusts the member balance atomically.
	CreatePurchase(ctx context.Context, memberID int64, product *domain.Product, quantity int, amount decimal.Decimal) (*domain.Transaction, error)
	// CreatePayment inserts a pending payment; no balance change until
	// approval.
	CreatePayment(ctx context.Context, memberID, createdByID int64, amount decimal.Decimal, note *string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	// ApproveTransaction transitions pending→approved and applies the amount
	// to the member balance. The transition is compare-and-swap on the
	// pending status; a lost race yields ErrInvalidState.
	ApproveTransaction(ctx context.Context, txID, adminID int64) (*domain.Transaction, error)
	// RejectTransaction transitions pending→rejected; no balance change.
	RejectTransaction(ctx context.Context, txID, adminID int64) (*domain.Transaction, error)
	ListMemberTransactions(ctx context.Context, memberID int64, limit int) ([]domain.Transaction, error)
	ListPendingTransactions(ctx context.Context) ([]domain.Transaction, error)
}

// FiscalStore manages fiscal periods and the debts their closes create.
type FiscalStore interface {
	GetCurrentPeriod(ctx context.Context) (*domain.FiscalPeriod, error)
	ListPeriods(ctx context.Context) ([]domain.FiscalPeriod, error)
	GetPeriod(ctx context.Context, id int64) (*domain.FiscalPeriod, error)
	// ClosePeriod executes the whole close as one storage transaction:
	// debts for negative balances of active members, all active balances to
	// zero, ended_at on the old period, a new open period. Returns the
	// created debts so the caller can notify the debtors after commit.
	ClosePeriod(ctx context.Context) (*domain.CloseResult, []domain.FiscalDebt, error)
	GetPeriodStats(ctx context.Context, periodID int64) (*domain.PeriodStats, error)
	ListPeriodDebts(ctx context.Context, periodID int64) ([]domain.FiscalDebt, error)
	// ListMemberOpenDebts returns the member's unpaid and payment_pending
	// debts, newest first.
	ListMemberOpenDebts(ctx context.Context, memberID int64) ([]domain.FiscalDebt, error)
	ListPendingDebts(ctx context.Context) ([]domain.FiscalDebt, error)
	GetDebt(ctx context.Context, id int64) (*domain.FiscalDebt, error)
	// TransitionDebt moves a debt from one of the expected statuses to the
	// target status, compare-and-swap. setPaidAt stamps paid_at.
	TransitionDebt(ctx context.Context, debtID int64, from []domain.DebtStatus, to domain.DebtStatus, setPaidAt bool) (*domain.FiscalDebt, error)
	// SumMemberOpenDebts is the member's fiscal_debt_total: unpaid plus
	// payment_pending amounts.
	SumMemberOpenDebts(ctx context.Context, memberID int64) (decimal.Decimal, error)
}

// TemplateStore manages the notification message templates.
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error)
	// GetActiveTemplate returns (nil, nil) when the event has no active
	// template; the dispatcher treats that as "suppress silently".
	GetActiveTemplate(ctx context.Context, event domain.EventType) (*domain.MessageTemplate, error)
	UpdateTemplate(ctx context.Context, id int64, patch *domain.TemplatePatch) (*domain.MessageTemplate, error)
}

// Store is the full persistence surface the services depend on.
type Store interface {
	MemberStore
	ProductStore
	TransactionStore
	FiscalStore
	TemplateStore

	Ping(ctx context.Context) error
}

// MessageSender delivers a rendered notification to a chat-platform identity.
type MessageSender interface {
	Send(ctx context.Context, telegramID int64, text string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

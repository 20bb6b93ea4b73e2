package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a purchasable catalog item. Products are never hard-deleted so
// historical transactions keep a valid reference; is_active=false hides them.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Emoji     string          `json:"emoji"`
	IsActive  bool            `json:"is_active"`
	SortOrder int             `json:"sort_order"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewProductInput is the payload for catalog creation.
type NewProductInput struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Emoji     string          `json:"emoji"`
	SortOrder int             `json:"sort_order"`
}

// ProductPatch is a partial update. Only non-nil fields are applied, each
// validated before merge.
type ProductPatch struct {
	Name      *string          `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Emoji     *string          `json:"emoji,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
	SortOrder *int             `json:"sort_order,omitempty"`
}

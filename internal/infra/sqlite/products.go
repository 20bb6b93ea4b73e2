package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

const productColumns = `id, name, price, emoji, is_active, sort_order, created_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p         domain.Product
		price     string
		active    int
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Emoji, &active, &p.SortOrder, &createdAt); err != nil {
		return nil, err
	}
	p.IsActive = active == 1

	var err error
	if p.Price, err = parseDecimal(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &p, nil
}

func (d *DB) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	return d.listProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active = 1 ORDER BY sort_order, name`)
}

func (d *DB) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	return d.listProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY sort_order, name`)
}

func (d *DB) listProducts(ctx context.Context, query string) ([]domain.Product, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (d *DB) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "product", ID: fmt.Sprint(id)}
	}
	return p, err
}

func (d *DB) GetActiveProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ? AND is_active = 1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "product", ID: fmt.Sprint(id)}
	}
	return p, err
}

func (d *DB) CreateProduct(ctx context.Context, in *domain.NewProductInput) (*domain.Product, error) {
	emoji := in.Emoji
	if emoji == "" {
		emoji = "🍺"
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO products (name, price, emoji, is_active, sort_order, created_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		in.Name, in.Price.String(), emoji, in.SortOrder, fmtTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetProduct(ctx, id)
}

// UpdateProduct merges the patch into the stored row. Validation of the
// individual fields happens in the service before this is called.
func (d *DB) UpdateProduct(ctx context.Context, id int64, patch *domain.ProductPatch) (*domain.Product, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "product", ID: fmt.Sprint(id)}
		}
		if err != nil {
			return err
		}

		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Emoji != nil {
			p.Emoji = *patch.Emoji
		}
		if patch.IsActive != nil {
			p.IsActive = *patch.IsActive
		}
		if patch.SortOrder != nil {
			p.SortOrder = *patch.SortOrder
		}

		active := 0
		if p.IsActive {
			active = 1
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET name = ?, price = ?, emoji = ?, is_active = ?, sort_order = ? WHERE id = ?`,
			p.Name, p.Price.String(), p.Emoji, active, p.SortOrder, id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.GetProduct(ctx, id)
}

func (d *DB) SoftDeleteProduct(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE products SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "product", ID: fmt.Sprint(id)}
	}
	return nil
}

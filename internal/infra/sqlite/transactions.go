package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

const transactionColumns = `t.id, t.member_id, t.product_id, t.type, t.quantity, t.unit_price,
	t.amount, t.status, t.approved_by_id, t.created_by_id, t.note, t.created_at, t.updated_at,
	p.name, m.first_name`

const transactionJoin = ` FROM transactions t
	JOIN members m ON m.id = t.member_id
	LEFT JOIN products p ON p.id = t.product_id`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                    domain.Transaction
		productID            sql.NullInt64
		quantity             sql.NullInt64
		unitPrice            sql.NullString
		amount               string
		approvedBy           sql.NullInt64
		note                 sql.NullString
		createdAt, updatedAt string
		productName          sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.MemberID, &productID, &t.Type, &quantity, &unitPrice,
		&amount, &t.Status, &approvedBy, &t.CreatedByID, &note, &createdAt, &updatedAt,
		&productName, &t.MemberName,
	)
	if err != nil {
		return nil, err
	}

	t.ProductID = int64Ptr(productID)
	t.ApprovedByID = int64Ptr(approvedBy)
	t.Note = strPtr(note)
	t.ProductName = strPtr(productName)
	if quantity.Valid {
		q := int(quantity.Int64)
		t.Quantity = &q
	}
	if unitPrice.Valid {
		up, err := parseDecimal(unitPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parse unit_price: %w", err)
		}
		t.UnitPrice = &up
	}
	if t.Amount, err = parseDecimal(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}

// CreatePurchase inserts an approved purchase and applies the amount to the
// member's balance in the same transaction. The unit price is captured here;
// later catalog edits never touch this row.
func (d *DB) CreatePurchase(ctx context.Context, memberID int64, product *domain.Product, quantity int, amount decimal.Decimal) (*domain.Transaction, error) {
	var txID int64
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		now := fmtTime(time.Now())
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions
				(member_id, product_id, type, quantity, unit_price, amount, status, created_by_id, created_at, updated_at)
			 VALUES (?, ?, 'purchase', ?, ?, ?, 'approved', ?, ?, ?)`,
			memberID, product.ID, quantity, product.Price.String(), amount.String(), memberID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		if txID, err = res.LastInsertId(); err != nil {
			return err
		}
		return applyBalanceDelta(ctx, tx, memberID, amount)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("purchase recorded",
		zap.Int64("tx_id", txID),
		zap.Int64("member_id", memberID),
		zap.String("amount", amount.String()),
	)
	return d.GetTransaction(ctx, txID)
}

func (d *DB) CreatePayment(ctx context.Context, memberID, createdByID int64, amount decimal.Decimal, note *string) (*domain.Transaction, error) {
	now := fmtTime(time.Now())
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO transactions
			(member_id, type, amount, status, created_by_id, note, created_at, updated_at)
		 VALUES (?, 'payment', ?, 'pending', ?, ?, ?, ?)`,
		memberID, amount.String(), createdByID, nullStr(note), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetTransaction(ctx, id)
}

func (d *DB) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+transactionJoin+` WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: fmt.Sprint(id)}
	}
	return t, err
}

// ApproveTransaction is compare-and-swap on the pending status: the UPDATE
// only matches a pending row, so a concurrent second approval affects zero
// rows and fails instead of applying the balance twice.
func (d *DB) ApproveTransaction(ctx context.Context, txID, adminID int64) (*domain.Transaction, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = 'approved', approved_by_id = ?, updated_at = ?
			 WHERE id = ? AND status = 'pending'`,
			adminID, fmtTime(time.Now()), txID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return transitionFailure(ctx, tx, txID, "approve")
		}

		var memberID int64
		var amountStr string
		if err := tx.QueryRowContext(ctx,
			`SELECT member_id, amount FROM transactions WHERE id = ?`, txID,
		).Scan(&memberID, &amountStr); err != nil {
			return err
		}
		amount, err := parseDecimal(amountStr)
		if err != nil {
			return err
		}
		return applyBalanceDelta(ctx, tx, memberID, amount)
	})
	if err != nil {
		return nil, err
	}
	return d.GetTransaction(ctx, txID)
}

func (d *DB) RejectTransaction(ctx context.Context, txID, adminID int64) (*domain.Transaction, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status = 'rejected', approved_by_id = ?, updated_at = ?
			 WHERE id = ? AND status = 'pending'`,
			adminID, fmtTime(time.Now()), txID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return transitionFailure(ctx, tx, txID, "reject")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetTransaction(ctx, txID)
}

func (d *DB) ListMemberTransactions(ctx context.Context, memberID int64, limit int) ([]domain.Transaction, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+transactionColumns+transactionJoin+`
		 WHERE t.member_id = ? ORDER BY t.created_at DESC, t.id DESC LIMIT ?`,
		memberID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (d *DB) ListPendingTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+transactionColumns+transactionJoin+`
		 WHERE t.status = 'pending' ORDER BY t.created_at DESC, t.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// applyBalanceDelta adds delta to the member's balance within tx.
func applyBalanceDelta(ctx context.Context, tx *sql.Tx, memberID int64, delta decimal.Decimal) error {
	var balanceStr string
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM members WHERE id = ?`, memberID,
	).Scan(&balanceStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "member", ID: fmt.Sprint(memberID)}
		}
		return err
	}
	balance, err := parseDecimal(balanceStr)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE members SET balance = ?, updated_at = ? WHERE id = ?`,
		balance.Add(delta).String(), fmtTime(time.Now()), memberID,
	)
	return err
}

// transitionFailure explains why a status CAS matched no rows: either the
// transaction does not exist, or it already left the pending state.
func transitionFailure(ctx context.Context, tx *sql.Tx, txID int64, action string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE id = ?`, txID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ErrNotFound{Resource: "transaction", ID: fmt.Sprint(txID)}
	}
	if err != nil {
		return err
	}
	return &domain.ErrInvalidState{Resource: "transaction", Current: status, Action: action}
}

// Package sqlite is the persistence adapter for the ledger. It implements
// port.Store on a single SQLite database via database/sql.
//
// Every multi-row mutation (purchase, approval, period close, bulk
// deactivate) runs inside one IMMEDIATE transaction, which is what gives the
// ledger its atomicity and compare-and-swap guarantees.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and implements port.Store.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
// The _txlock=immediate pragma makes every BeginTx take the write lock up
// front, so concurrent writers queue instead of failing mid-transaction.
func Open(path string, logger *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path,
	)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection keeps
	// database/sql from fighting over it.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{db: sqlDB, logger: logger}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping reports storage reachability for health checks.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS members (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			first_name  TEXT NOT NULL,
			last_name   TEXT,
			username    TEXT,
			role        TEXT NOT NULL DEFAULT 'member'
			            CHECK (role IN ('member', 'admin')),
			status      TEXT NOT NULL DEFAULT 'pending'
			            CHECK (status IN ('pending', 'active')),
			balance     TEXT NOT NULL DEFAULT '0',
			added_by_id INTEGER REFERENCES members(id),
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_telegram_id ON members(telegram_id)`,

		`CREATE TABLE IF NOT EXISTS products (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			price      TEXT NOT NULL,
			emoji      TEXT NOT NULL DEFAULT '🍺',
			is_active  INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			member_id      INTEGER NOT NULL REFERENCES members(id),
			product_id     INTEGER REFERENCES products(id),
			type           TEXT NOT NULL CHECK (type IN ('purchase', 'payment')),
			quantity       INTEGER,
			unit_price     TEXT,
			amount         TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending'
			               CHECK (status IN ('pending', 'approved', 'rejected')),
			approved_by_id INTEGER REFERENCES members(id),
			created_by_id  INTEGER NOT NULL REFERENCES members(id),
			note           TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_member ON transactions(member_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,

		`CREATE TABLE IF NOT EXISTS fiscal_periods (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			ended_at   TEXT,
			created_at TEXT NOT NULL
		)`,
		// At most one open period, enforced by the storage layer so the
		// invariant survives restarts and multiple processes.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_fiscal_periods_open
			ON fiscal_periods ((ended_at IS NULL)) WHERE ended_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS fiscal_debts (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			fiscal_period_id INTEGER NOT NULL REFERENCES fiscal_periods(id),
			member_id        INTEGER NOT NULL REFERENCES members(id),
			amount           TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'unpaid'
			                 CHECK (status IN ('unpaid', 'payment_pending', 'paid')),
			paid_at          TEXT,
			created_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fiscal_debts_member ON fiscal_debts(member_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_fiscal_debts_period ON fiscal_debts(fiscal_period_id)`,

		`CREATE TABLE IF NOT EXISTS message_templates (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL UNIQUE,
			template   TEXT NOT NULL,
			is_active  INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
}

func (d *DB) migrate() error {
	for _, stmt := range migrations() {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ─── Scan helpers ───────────────────────────────────────────────────────────

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Fallback for rows written without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullString) (*time.Time, error) {
	if !n.Valid {
		return nil, nil
	}
	t, err := parseTime(n.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

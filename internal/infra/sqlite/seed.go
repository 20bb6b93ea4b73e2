package sqlite

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

type seedProduct struct {
	name      string
	price     string
	emoji     string
	sortOrder int
}

var seedProducts = []seedProduct{
	{"Olut", "1", "🍺", 0},
	{"Siideri", "2", "🍏", 1},
	{"Limsa", "1", "🥤", 2},
	{"Lonkero", "2", "🍋", 3},
}

var seedTemplates = map[domain.EventType]string{
	domain.EventPaymentApproved:     "{user}, your payment of {amount} € was approved ✅",
	domain.EventPaymentRejected:     "{user}, your payment of {amount} € was rejected ❌",
	domain.EventFiscalPeriodClosed:  "{user}, the fiscal period has closed. Your outstanding debt is {amount} €.",
	domain.EventDebtPaymentApproved: "{user}, your debt payment of {amount} € was approved ✅",
	domain.EventDebtPaymentRejected: "{user}, your debt payment of {amount} € was rejected ❌",
}

// Seed bootstraps an empty database: the default price list, admin members
// from configuration, one template per notification event, and an open fiscal
// period. All checks are idempotent so Seed is safe to run on every startup.
func (d *DB) Seed(ctx context.Context, adminTelegramIDs []int64) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		now := fmtTime(time.Now())

		if err := d.seedProducts(ctx, tx, now); err != nil {
			return err
		}
		if err := d.seedAdmins(ctx, tx, adminTelegramIDs, now); err != nil {
			return err
		}
		if err := d.seedTemplates(ctx, tx, now); err != nil {
			return err
		}
		return d.seedOpenPeriod(ctx, tx, now)
	})
}

func (d *DB) seedProducts(ctx context.Context, tx *sql.Tx, now string) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, p := range seedProducts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (name, price, emoji, is_active, sort_order, created_at)
			 VALUES (?, ?, ?, 1, ?, ?)`,
			p.name, p.price, p.emoji, p.sortOrder, now,
		)
		if err != nil {
			return err
		}
	}
	d.logger.Info("seeded default products", zap.Int("count", len(seedProducts)))
	return nil
}

// seedAdmins makes sure every configured telegram id maps to an active admin.
// Unknown ids get a placeholder member; the real name arrives with their
// first authenticated request.
func (d *DB) seedAdmins(ctx context.Context, tx *sql.Tx, telegramIDs []int64, now string) error {
	for _, tid := range telegramIDs {
		var id int64
		var role, status string
		err := tx.QueryRowContext(ctx,
			`SELECT id, role, status FROM members WHERE telegram_id = ?`, tid,
		).Scan(&id, &role, &status)

		switch {
		case err == sql.ErrNoRows:
			_, err := tx.ExecContext(ctx,
				`INSERT INTO members (telegram_id, first_name, role, status, balance, created_at, updated_at)
				 VALUES (?, 'Admin', 'admin', 'active', '0', ?, ?)`,
				tid, now, now,
			)
			if err != nil {
				return err
			}
			d.logger.Info("bootstrapped admin", zap.Int64("telegram_id", tid))
		case err != nil:
			return err
		case role != string(domain.RoleAdmin) || status != string(domain.MemberActive):
			_, err := tx.ExecContext(ctx,
				`UPDATE members SET role = 'admin', status = 'active', updated_at = ? WHERE id = ?`,
				now, id,
			)
			if err != nil {
				return err
			}
			d.logger.Info("promoted configured admin", zap.Int64("telegram_id", tid))
		}
	}
	return nil
}

func (d *DB) seedTemplates(ctx context.Context, tx *sql.Tx, now string) error {
	for event, text := range seedTemplates {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO message_templates (event_type, template, is_active, created_at, updated_at)
			 VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT (event_type) DO NOTHING`,
			string(event), text, now, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) seedOpenPeriod(ctx context.Context, tx *sql.Tx, now string) error {
	var open int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fiscal_periods WHERE ended_at IS NULL`,
	).Scan(&open); err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO fiscal_periods (started_at, created_at) VALUES (?, ?)`, now, now)
	if err == nil {
		d.logger.Info("opened initial fiscal period")
	}
	return err
}

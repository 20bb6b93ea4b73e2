package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

func scanPeriod(row rowScanner) (*domain.FiscalPeriod, error) {
	var (
		p                    domain.FiscalPeriod
		startedAt, createdAt string
		endedAt              sql.NullString
	)
	if err := row.Scan(&p.ID, &startedAt, &endedAt, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if p.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if p.EndedAt, err = timePtr(endedAt); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &p, nil
}

const debtColumns = `d.id, d.fiscal_period_id, d.member_id, d.amount, d.status, d.paid_at, d.created_at,
	m.first_name, m.telegram_id, fp.started_at, fp.ended_at`

const debtJoin = ` FROM fiscal_debts d
	JOIN members m ON m.id = d.member_id
	JOIN fiscal_periods fp ON fp.id = d.fiscal_period_id`

func scanDebt(row rowScanner) (*domain.FiscalDebt, error) {
	var (
		fd                       domain.FiscalDebt
		amount                   string
		paidAt                   sql.NullString
		createdAt, periodStarted string
		periodEnded              sql.NullString
	)
	err := row.Scan(
		&fd.ID, &fd.FiscalPeriodID, &fd.MemberID, &amount, &fd.Status, &paidAt, &createdAt,
		&fd.MemberName, &fd.MemberTelegramID, &periodStarted, &periodEnded,
	)
	if err != nil {
		return nil, err
	}

	if fd.Amount, err = parseDecimal(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if fd.PaidAt, err = timePtr(paidAt); err != nil {
		return nil, fmt.Errorf("parse paid_at: %w", err)
	}
	if fd.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if fd.PeriodStartedAt, err = parseTime(periodStarted); err != nil {
		return nil, fmt.Errorf("parse period started_at: %w", err)
	}
	if fd.PeriodEndedAt, err = timePtr(periodEnded); err != nil {
		return nil, fmt.Errorf("parse period ended_at: %w", err)
	}
	return &fd, nil
}

func (d *DB) GetCurrentPeriod(ctx context.Context) (*domain.FiscalPeriod, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, created_at FROM fiscal_periods WHERE ended_at IS NULL`)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "fiscal period", ID: "current"}
	}
	return p, err
}

func (d *DB) ListPeriods(ctx context.Context) ([]domain.FiscalPeriod, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, created_at FROM fiscal_periods ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []domain.FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

func (d *DB) GetPeriod(ctx context.Context, id int64) (*domain.FiscalPeriod, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, created_at FROM fiscal_periods WHERE id = ?`, id)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "fiscal period", ID: fmt.Sprint(id)}
	}
	return p, err
}

// ClosePeriod settles the open period as one atomic unit: create a debt for
// every active member in the red, zero all active balances, stamp ended_at,
// open the successor. Either all of it commits or none of it is visible.
func (d *DB) ClosePeriod(ctx context.Context) (*domain.CloseResult, []domain.FiscalDebt, error) {
	var (
		result CloseOutcome
		now    = time.Now()
	)
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanPeriod(tx.QueryRowContext(ctx,
			`SELECT id, started_at, ended_at, created_at FROM fiscal_periods WHERE ended_at IS NULL`))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrConflict{Message: "no open fiscal period to close"}
		}
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id, telegram_id, first_name, balance FROM members WHERE status = 'active' ORDER BY id`)
		if err != nil {
			return err
		}
		type debtor struct {
			id, telegramID int64
			name           string
			owed           decimal.Decimal
		}
		var debtors []debtor
		for rows.Next() {
			var (
				dbt        debtor
				balanceStr string
			)
			if err := rows.Scan(&dbt.id, &dbt.telegramID, &dbt.name, &balanceStr); err != nil {
				rows.Close()
				return err
			}
			balance, err := parseDecimal(balanceStr)
			if err != nil {
				rows.Close()
				return err
			}
			if balance.IsNegative() {
				dbt.owed = balance.Neg()
				debtors = append(debtors, dbt)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		nowStr := fmtTime(now)
		for _, dbt := range debtors {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO fiscal_debts (fiscal_period_id, member_id, amount, status, created_at)
				 VALUES (?, ?, ?, 'unpaid', ?)`,
				current.ID, dbt.id, dbt.owed.String(), nowStr,
			)
			if err != nil {
				return fmt.Errorf("insert debt: %w", err)
			}
			debtID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			result.Debts = append(result.Debts, domain.FiscalDebt{
				ID:               debtID,
				FiscalPeriodID:   current.ID,
				MemberID:         dbt.id,
				MemberName:       dbt.name,
				MemberTelegramID: dbt.telegramID,
				Amount:           dbt.owed,
				Status:           domain.DebtUnpaid,
				CreatedAt:        now,
				PeriodStartedAt:  current.StartedAt,
				PeriodEndedAt:    &now,
			})
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET balance = '0', updated_at = ? WHERE status = 'active'`, nowStr,
		); err != nil {
			return err
		}

		// Guarded close: if another close slipped in, zero rows match and
		// we bail out instead of corrupting the period chain.
		res, err := tx.ExecContext(ctx,
			`UPDATE fiscal_periods SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
			nowStr, current.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.ErrConflict{Message: "fiscal period already closed"}
		}

		newRes, err := tx.ExecContext(ctx,
			`INSERT INTO fiscal_periods (started_at, created_at) VALUES (?, ?)`,
			nowStr, nowStr,
		)
		if err != nil {
			return fmt.Errorf("open new period: %w", err)
		}
		newID, err := newRes.LastInsertId()
		if err != nil {
			return err
		}

		result.Result = domain.CloseResult{
			ClosedPeriodID: current.ID,
			DebtsCreated:   len(result.Debts),
			NewPeriodID:    newID,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	d.logger.Info("fiscal period closed",
		zap.Int64("closed_period_id", result.Result.ClosedPeriodID),
		zap.Int64("new_period_id", result.Result.NewPeriodID),
		zap.Int("debts_created", result.Result.DebtsCreated),
	)
	return &result.Result, result.Debts, nil
}

// CloseOutcome bundles what ClosePeriod produced inside its transaction.
type CloseOutcome struct {
	Result domain.CloseResult
	Debts  []domain.FiscalDebt
}

// GetPeriodStats aggregates approved transactions inside the period window
// plus the debt totals from its close. Sums are computed in Go so decimal
// arithmetic stays exact.
func (d *DB) GetPeriodStats(ctx context.Context, periodID int64) (*domain.PeriodStats, error) {
	period, err := d.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}

	end := time.Now()
	if period.EndedAt != nil {
		end = *period.EndedAt
	}

	stats := &domain.PeriodStats{
		ID:                  period.ID,
		StartedAt:           period.StartedAt,
		EndedAt:             period.EndedAt,
		TotalPurchaseAmount: decimal.Zero,
		TotalPaymentAmount:  decimal.Zero,
		TotalDebt:           decimal.Zero,
		DebtCollected:       decimal.Zero,
		DebtOutstanding:     decimal.Zero,
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT type, amount FROM transactions
		 WHERE status = 'approved' AND created_at >= ? AND created_at <= ?`,
		fmtTime(period.StartedAt), fmtTime(end),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txType, amountStr string
		if err := rows.Scan(&txType, &amountStr); err != nil {
			return nil, err
		}
		amount, err := parseDecimal(amountStr)
		if err != nil {
			return nil, err
		}
		switch domain.TransactionType(txType) {
		case domain.TransactionPurchase:
			stats.TotalPurchases++
			stats.TotalPurchaseAmount = stats.TotalPurchaseAmount.Add(amount.Abs())
		case domain.TransactionPayment:
			stats.TotalPayments++
			stats.TotalPaymentAmount = stats.TotalPaymentAmount.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debtRows, err := d.db.QueryContext(ctx,
		`SELECT amount, status FROM fiscal_debts WHERE fiscal_period_id = ?`, periodID)
	if err != nil {
		return nil, err
	}
	defer debtRows.Close()

	for debtRows.Next() {
		var amountStr, status string
		if err := debtRows.Scan(&amountStr, &status); err != nil {
			return nil, err
		}
		amount, err := parseDecimal(amountStr)
		if err != nil {
			return nil, err
		}
		stats.TotalDebt = stats.TotalDebt.Add(amount)
		if domain.DebtStatus(status) == domain.DebtPaid {
			stats.DebtCollected = stats.DebtCollected.Add(amount)
		}
	}
	if err := debtRows.Err(); err != nil {
		return nil, err
	}

	stats.DebtOutstanding = stats.TotalDebt.Sub(stats.DebtCollected)
	return stats, nil
}

func (d *DB) ListPeriodDebts(ctx context.Context, periodID int64) ([]domain.FiscalDebt, error) {
	debts, err := d.listDebts(ctx,
		`SELECT `+debtColumns+debtJoin+` WHERE d.fiscal_period_id = ?`, periodID)
	if err != nil {
		return nil, err
	}
	// Largest debts first, id as the stable tiebreak.
	sort.SliceStable(debts, func(i, j int) bool {
		if c := debts[i].Amount.Cmp(debts[j].Amount); c != 0 {
			return c > 0
		}
		return debts[i].ID < debts[j].ID
	})
	return debts, nil
}

func (d *DB) ListMemberOpenDebts(ctx context.Context, memberID int64) ([]domain.FiscalDebt, error) {
	return d.listDebts(ctx,
		`SELECT `+debtColumns+debtJoin+`
		 WHERE d.member_id = ? AND d.status IN ('unpaid', 'payment_pending')
		 ORDER BY d.created_at DESC, d.id DESC`, memberID)
}

func (d *DB) ListPendingDebts(ctx context.Context) ([]domain.FiscalDebt, error) {
	return d.listDebts(ctx,
		`SELECT `+debtColumns+debtJoin+`
		 WHERE d.status = 'payment_pending'
		 ORDER BY d.created_at DESC, d.id DESC`)
}

func (d *DB) listDebts(ctx context.Context, query string, args ...any) ([]domain.FiscalDebt, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debts []domain.FiscalDebt
	for rows.Next() {
		fd, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, *fd)
	}
	return debts, rows.Err()
}

func (d *DB) GetDebt(ctx context.Context, id int64) (*domain.FiscalDebt, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+debtJoin+` WHERE d.id = ?`, id)
	fd, err := scanDebt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "debt", ID: fmt.Sprint(id)}
	}
	return fd, err
}

// TransitionDebt moves a debt to the target status if and only if its
// current status is one of the expected pre-states.
func (d *DB) TransitionDebt(ctx context.Context, debtID int64, from []domain.DebtStatus, to domain.DebtStatus, setPaidAt bool) (*domain.FiscalDebt, error) {
	placeholders := make([]string, len(from))
	args := []any{string(to)}

	var paidAt any
	if setPaidAt {
		paidAt = fmtTime(time.Now())
	}
	args = append(args, paidAt, debtID)
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	err := d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE fiscal_debts SET status = ?, paid_at = ?
			 WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
			args...,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var status string
			err := tx.QueryRowContext(ctx,
				`SELECT status FROM fiscal_debts WHERE id = ?`, debtID,
			).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.ErrNotFound{Resource: "debt", ID: fmt.Sprint(debtID)}
			}
			if err != nil {
				return err
			}
			return &domain.ErrInvalidState{Resource: "debt", Current: status, Action: string(to)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetDebt(ctx, debtID)
}

// SumMemberOpenDebts is the member's fiscal_debt_total: what is still owed
// from closed periods. payment_pending counts as owed until approved.
func (d *DB) SumMemberOpenDebts(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT amount FROM fiscal_debts
		 WHERE member_id = ? AND status IN ('unpaid', 'payment_pending')`,
		memberID,
	)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return decimal.Zero, err
		}
		amount, err := parseDecimal(amountStr)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

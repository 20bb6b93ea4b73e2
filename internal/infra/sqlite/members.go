package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

const memberColumns = `id, telegram_id, first_name, last_name, username, role, status, balance, added_by_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var (
		m                  domain.Member
		lastName, username sql.NullString
		addedBy            sql.NullInt64
		balance            string
		createdAt          string
		updatedAt          string
	)
	err := row.Scan(
		&m.ID, &m.TelegramID, &m.FirstName, &lastName, &username,
		&m.Role, &m.Status, &balance, &addedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.LastName = strPtr(lastName)
	m.Username = strPtr(username)
	m.AddedByID = int64Ptr(addedBy)
	if m.Balance, err = parseDecimal(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &m, nil
}

func (d *DB) GetMemberByTelegramID(ctx context.Context, telegramID int64) (*domain.Member, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE telegram_id = ?`, telegramID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (d *DB) GetMemberByID(ctx context.Context, id int64) (*domain.Member, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "member", ID: fmt.Sprint(id)}
	}
	return m, err
}

func (d *DB) CreateMember(ctx context.Context, in *domain.NewMemberInput, role domain.Role, status domain.MemberStatus, addedByID *int64) (*domain.Member, error) {
	now := fmtTime(time.Now())
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO members (telegram_id, first_name, last_name, username, role, status, balance, added_by_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '0', ?, ?, ?)`,
		in.TelegramID, in.FirstName, nullStr(in.LastName), nullStr(in.Username),
		role, status, nullInt64(addedByID), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	d.logger.Info("member created",
		zap.Int64("member_id", id),
		zap.Int64("telegram_id", in.TelegramID),
		zap.String("status", string(status)),
	)
	return d.GetMemberByID(ctx, id)
}

func (d *DB) UpdateMemberIdentity(ctx context.Context, id int64, firstName string, lastName, username *string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE members SET first_name = ?, last_name = ?, username = ?, updated_at = ? WHERE id = ?`,
		firstName, nullStr(lastName), nullStr(username), fmtTime(time.Now()), id,
	)
	return err
}

func (d *DB) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY first_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMembers(rows)
}

// ListLeaderboard returns active members ordered by balance descending.
// Decimal comparison happens in Go so the ordering is exact; member id is
// the stable tiebreak.
func (d *DB) ListLeaderboard(ctx context.Context) ([]domain.Member, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members, err := collectMembers(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(members, func(i, j int) bool {
		if c := members[i].Balance.Cmp(members[j].Balance); c != 0 {
			return c > 0
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func collectMembers(rows *sql.Rows) ([]domain.Member, error) {
	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (d *DB) ActivateMember(ctx context.Context, id int64) (*domain.Member, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE members SET status = 'active', updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &domain.ErrNotFound{Resource: "member", ID: fmt.Sprint(id)}
	}
	return d.GetMemberByID(ctx, id)
}

// DeactivateMember flips the member back to pending and zeroes the balance.
// Refuses to remove the last active admin.
func (d *DB) DeactivateMember(ctx context.Context, id int64) (*domain.Member, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMember(tx.QueryRowContext(ctx,
			`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "member", ID: fmt.Sprint(id)}
		}
		if err != nil {
			return err
		}

		if m.IsAdmin() {
			if err := requireAnotherActiveAdmin(ctx, tx, id, "deactivate"); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE members SET status = 'pending', balance = '0', updated_at = ? WHERE id = ?`,
			fmtTime(time.Now()), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.GetMemberByID(ctx, id)
}

func (d *DB) PromoteMember(ctx context.Context, id int64) (*domain.Member, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE members SET role = 'admin', updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &domain.ErrNotFound{Resource: "member", ID: fmt.Sprint(id)}
	}
	return d.GetMemberByID(ctx, id)
}

// DemoteMember refuses to demote the last remaining active admin.
func (d *DB) DemoteMember(ctx context.Context, id int64) (*domain.Member, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMember(tx.QueryRowContext(ctx,
			`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "member", ID: fmt.Sprint(id)}
		}
		if err != nil {
			return err
		}

		if m.IsAdmin() {
			if err := requireAnotherActiveAdmin(ctx, tx, id, "demote"); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE members SET role = 'member', updated_at = ? WHERE id = ?`,
			fmtTime(time.Now()), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.GetMemberByID(ctx, id)
}

// DeactivateAllMembers resets the club between seasons: every active
// non-admin member goes back to pending with a zero balance, in one
// transaction. Admins are untouched so the last-admin guard cannot trip.
func (d *DB) DeactivateAllMembers(ctx context.Context) (int, error) {
	var affected int
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE members SET status = 'pending', balance = '0', updated_at = ?
			 WHERE role = 'member' AND status = 'active'`,
			fmtTime(time.Now()),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		affected = int(n)
		return err
	})
	return affected, err
}

func requireAnotherActiveAdmin(ctx context.Context, tx *sql.Tx, excludeID int64, action string) error {
	var others int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE role = 'admin' AND status = 'active' AND id != ?`,
		excludeID,
	).Scan(&others)
	if err != nil {
		return err
	}
	if others == 0 {
		return &domain.ErrInvalidState{Resource: "member", Current: "last active admin", Action: action}
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

const templateColumns = `id, event_type, template, is_active, created_at, updated_at`

func scanTemplate(row rowScanner) (*domain.MessageTemplate, error) {
	var (
		t                    domain.MessageTemplate
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.EventType, &t.Template, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.IsActive = active == 1

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}

func (d *DB) ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM message_templates ORDER BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.MessageTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// GetActiveTemplate returns (nil, nil) when the event has no active template;
// the dispatcher suppresses the notification silently in that case.
func (d *DB) GetActiveTemplate(ctx context.Context, event domain.EventType) (*domain.MessageTemplate, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM message_templates WHERE event_type = ? AND is_active = 1`,
		string(event),
	)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (d *DB) UpdateTemplate(ctx context.Context, id int64, patch *domain.TemplatePatch) (*domain.MessageTemplate, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTemplate(tx.QueryRowContext(ctx,
			`SELECT `+templateColumns+` FROM message_templates WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "message template", ID: fmt.Sprint(id)}
		}
		if err != nil {
			return err
		}

		if patch.Template != nil {
			t.Template = *patch.Template
		}
		if patch.IsActive != nil {
			t.IsActive = *patch.IsActive
		}

		active := 0
		if t.IsActive {
			active = 1
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE message_templates SET template = ?, is_active = ?, updated_at = ? WHERE id = ?`,
			t.Template, active, fmtTime(time.Now()), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	row := d.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM message_templates WHERE id = ?`, id)
	return scanTemplate(row)
}

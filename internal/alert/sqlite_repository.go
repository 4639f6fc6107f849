package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tagwatch/tagwatch/internal/database"
)

// SQLiteRepository is a SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite alert repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts an alert.
func (r *SQLiteRepository) Save(ctx context.Context, a *Alert) (string, error) {
	ensureDefaults(a)

	var deliveredAt sql.NullString
	if a.DeliveredAt != nil {
		deliveredAt = sql.NullString{String: database.FormatTime(*a.DeliveredAt), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, reading_id, device_id, kind, message, created_at, delivered, delivered_at, recipient_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ReadingID,
		a.DeviceID,
		string(a.Kind),
		a.Message,
		database.FormatTime(a.CreatedAt),
		a.Delivered,
		deliveredAt,
		a.RecipientCount,
	)
	if err != nil {
		return "", err
	}

	return a.ID, nil
}

// MarkDelivered flags an alert as delivered.
func (r *SQLiteRepository) MarkDelivered(ctx context.Context, id string, recipientCount int, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET delivered = 1, delivered_at = ?, recipient_count = ?
		WHERE id = ? AND delivered = 0`,
		database.FormatTime(at), recipientCount, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAlertNotFound
		}
	}

	return nil
}

// ListByDevice retrieves the most recent alerts for a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, opts ListOptions) (*ListResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reading_id, device_id, kind, message, created_at, delivered, delivered_at, recipient_count
		FROM alerts
		WHERE device_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, deviceID, opts.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Alert
	for rows.Next() {
		var (
			a           Alert
			kind        string
			createdAt   string
			deliveredAt sql.NullString
		)
		err := rows.Scan(
			&a.ID,
			&a.ReadingID,
			&a.DeviceID,
			&kind,
			&a.Message,
			&createdAt,
			&a.Delivered,
			&deliveredAt,
			&a.RecipientCount,
		)
		if err != nil {
			return nil, err
		}

		a.Kind = Kind(kind)
		if a.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if deliveredAt.Valid {
			t, err := database.ParseTime(deliveredAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse delivered_at: %w", err)
			}
			a.DeliveredAt = &t
		}
		items = append(items, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResult{Items: items}, nil
}

var _ Repository = (*SQLiteRepository)(nil)

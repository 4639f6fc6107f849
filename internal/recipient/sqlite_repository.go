package recipient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tagwatch/tagwatch/internal/database"
)

// SQLiteRepository is a SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite recipient repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ListNotifiable returns active recipients of a tag that have a push token.
func (r *SQLiteRepository) ListNotifiable(ctx context.Context, deviceID string) ([]*Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM recipients
		WHERE device_id = ? AND active = 1 AND push_token IS NOT NULL AND push_token <> ''
		ORDER BY id`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Recipient
	for rows.Next() {
		rcp, err := scanSQLiteRecipient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rcp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// InvalidateToken clears the push token of a recipient.
func (r *SQLiteRepository) InvalidateToken(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE recipients SET
			push_token = NULL,
			updated_at = CASE WHEN push_token IS NULL THEN updated_at ELSE ? END
		WHERE id = ?`,
		database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

// Get retrieves a recipient by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Recipient, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM recipients WHERE id = ?`, id)
	rcp, err := scanSQLiteRecipient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return rcp, nil
}

// Upsert creates or updates the registration for (UserID, DeviceID).
func (r *SQLiteRepository) Upsert(ctx context.Context, rcp *Recipient) (bool, error) {
	now := time.Now().UTC()
	if rcp.ID == "" {
		rcp.ID = NewID()
	}
	if rcp.CreatedAt.IsZero() {
		rcp.CreatedAt = now
	}
	rcp.UpdatedAt = now

	var token sql.NullString
	if rcp.PushToken != nil {
		token = sql.NullString{String: *rcp.PushToken, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM recipients WHERE user_id = ? AND device_id = ?`,
		rcp.UserID, rcp.DeviceID,
	).Scan(&existingID, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recipients (id, user_id, device_id, platform, push_token, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rcp.ID, rcp.UserID, rcp.DeviceID, string(rcp.Platform), token, rcp.Active,
			database.FormatTime(rcp.CreatedAt), database.FormatTime(rcp.UpdatedAt),
		)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recipients SET platform = ?, push_token = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		string(rcp.Platform), token, rcp.Active, database.FormatTime(rcp.UpdatedAt), existingID,
	)
	if err != nil {
		return false, err
	}

	rcp.ID = existingID
	if rcp.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return false, fmt.Errorf("parse created_at: %w", err)
	}
	return false, tx.Commit()
}

func scanSQLiteRecipient(row rowScanner) (*Recipient, error) {
	var (
		rcp                  Recipient
		platform             string
		token                sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rcp.ID,
		&rcp.UserID,
		&rcp.DeviceID,
		&platform,
		&token,
		&rcp.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rcp.Platform = Platform(platform)
	if token.Valid {
		rcp.PushToken = &token.String
	}
	if rcp.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rcp.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rcp, nil
}

var _ Repository = (*SQLiteRepository)(nil)

package recipient

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL recipient repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectColumns = `id, user_id, device_id, platform, push_token, active, created_at, updated_at`

// ListNotifiable returns active recipients of a tag that have a push token.
func (r *PostgresRepository) ListNotifiable(ctx context.Context, deviceID string) ([]*Recipient, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM recipients
		WHERE device_id = $1 AND active = TRUE AND push_token IS NOT NULL AND push_token <> ''
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Recipient
	for rows.Next() {
		rcp, err := scanRecipient(rows)
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
func (r *PostgresRepository) InvalidateToken(ctx context.Context, id string) error {
	query := `
		UPDATE recipients SET
			push_token = NULL,
			updated_at = CASE WHEN push_token IS NULL THEN updated_at ELSE $2 END
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRecipientNotFound
	}

	return nil
}

// Get retrieves a recipient by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Recipient, error) {
	query := `SELECT ` + selectColumns + ` FROM recipients WHERE id = $1`

	rcp, err := scanRecipient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return rcp, nil
}

// Upsert creates or updates the registration for (UserID, DeviceID).
func (r *PostgresRepository) Upsert(ctx context.Context, rcp *Recipient) (bool, error) {
	now := time.Now().UTC()
	if rcp.ID == "" {
		rcp.ID = NewID()
	}
	if rcp.CreatedAt.IsZero() {
		rcp.CreatedAt = now
	}
	rcp.UpdatedAt = now

	query := `
		INSERT INTO recipients (id, user_id, device_id, platform, push_token, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			platform = EXCLUDED.platform,
			push_token = EXCLUDED.push_token,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		rcp.ID,
		rcp.UserID,
		rcp.DeviceID,
		rcp.Platform,
		rcp.PushToken,
		rcp.Active,
		rcp.CreatedAt,
		rcp.UpdatedAt,
	).Scan(&rcp.ID, &rcp.CreatedAt, &inserted)
	if err != nil {
		return false, err
	}

	return inserted, nil
}

func scanRecipient(row pgx.Row) (*Recipient, error) {
	var rcp Recipient
	err := row.Scan(
		&rcp.ID,
		&rcp.UserID,
		&rcp.DeviceID,
		&rcp.Platform,
		&rcp.PushToken,
		&rcp.Active,
		&rcp.CreatedAt,
		&rcp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rcp, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)

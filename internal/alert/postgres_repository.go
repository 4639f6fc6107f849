package alert

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save inserts an alert.
func (r *PostgresRepository) Save(ctx context.Context, a *Alert) (string, error) {
	ensureDefaults(a)

	query := `
		INSERT INTO alerts (id, reading_id, device_id, kind, message, created_at, delivered, delivered_at, recipient_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.ReadingID,
		a.DeviceID,
		a.Kind,
		a.Message,
		a.CreatedAt,
		a.Delivered,
		a.DeliveredAt,
		a.RecipientCount,
	)
	if err != nil {
		return "", err
	}

	return a.ID, nil
}

// MarkDelivered flags an alert as delivered.
func (r *PostgresRepository) MarkDelivered(ctx context.Context, id string, recipientCount int, at time.Time) error {
	// The delivered guard keeps the first delivery timestamp on retries.
	query := `
		UPDATE alerts SET
			delivered = TRUE,
			delivered_at = $2,
			recipient_count = $3
		WHERE id = $1 AND delivered = FALSE
	`

	result, err := r.pool.Exec(ctx, query, id, at, recipientCount)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrAlertNotFound
		}
	}

	return nil
}

// ListByDevice retrieves the most recent alerts for a device.
func (r *PostgresRepository) ListByDevice(ctx context.Context, deviceID string, opts ListOptions) (*ListResult, error) {
	query := `
		SELECT id, reading_id, device_id, kind, message, created_at, delivered, delivered_at, recipient_count
		FROM alerts
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, deviceID, opts.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Alert
	for rows.Next() {
		var a Alert
		err := rows.Scan(
			&a.ID,
			&a.ReadingID,
			&a.DeviceID,
			&a.Kind,
			&a.Message,
			&a.CreatedAt,
			&a.Delivered,
			&a.DeliveredAt,
			&a.RecipientCount,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResult{Items: items}, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)

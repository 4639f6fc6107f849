package reading

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL reading repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save inserts a reading.
func (r *PostgresRepository) Save(ctx context.Context, reading *Reading) (string, error) {
	ensureID(reading)

	query := `
		INSERT INTO readings (id, device_id, dock_id, temperature, accel_x, accel_y, accel_z,
			battery_percent, audio_segment, observed_at, topic, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		reading.ID,
		reading.DeviceID,
		reading.DockID,
		reading.Temperature,
		reading.Acceleration[0],
		reading.Acceleration[1],
		reading.Acceleration[2],
		reading.BatteryPercent,
		reading.AudioSegment,
		reading.ObservedAt,
		reading.Topic,
		reading.ReceivedAt,
	)
	if err != nil {
		return "", err
	}

	return reading.ID, nil
}

// ListByDevice retrieves the most recent readings for a device.
func (r *PostgresRepository) ListByDevice(ctx context.Context, deviceID string, opts ListOptions) (*ListResult, error) {
	query := `
		SELECT id, device_id, dock_id, temperature, accel_x, accel_y, accel_z,
			battery_percent, audio_segment, observed_at, topic, received_at
		FROM readings
		WHERE device_id = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, deviceID, opts.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Reading
	for rows.Next() {
		var reading Reading
		err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.DockID,
			&reading.Temperature,
			&reading.Acceleration[0],
			&reading.Acceleration[1],
			&reading.Acceleration[2],
			&reading.BatteryPercent,
			&reading.AudioSegment,
			&reading.ObservedAt,
			&reading.Topic,
			&reading.ReceivedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, &reading)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResult{Items: items}, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)

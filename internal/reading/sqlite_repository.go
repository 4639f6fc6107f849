package reading

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tagwatch/tagwatch/internal/database"
)

// SQLiteRepository is a SQLite implementation of Repository, used for local
// development and single-node deployments.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite reading repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts a reading.
func (r *SQLiteRepository) Save(ctx context.Context, reading *Reading) (string, error) {
	ensureID(reading)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO readings (id, device_id, dock_id, temperature, accel_x, accel_y, accel_z,
			battery_percent, audio_segment, observed_at, topic, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID,
		reading.DeviceID,
		nullString(reading.DockID),
		reading.Temperature,
		reading.Acceleration[0],
		reading.Acceleration[1],
		reading.Acceleration[2],
		reading.BatteryPercent,
		nullString(reading.AudioSegment),
		database.FormatTime(reading.ObservedAt),
		reading.Topic,
		database.FormatTime(reading.ReceivedAt),
	)
	if err != nil {
		return "", err
	}

	return reading.ID, nil
}

// ListByDevice retrieves the most recent readings for a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, opts ListOptions) (*ListResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, dock_id, temperature, accel_x, accel_y, accel_z,
			battery_percent, audio_segment, observed_at, topic, received_at
		FROM readings
		WHERE device_id = ?
		ORDER BY observed_at DESC
		LIMIT ?`, deviceID, opts.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Reading
	for rows.Next() {
		var (
			reading            Reading
			dock, audio        sql.NullString
			observed, received string
		)
		err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&dock,
			&reading.Temperature,
			&reading.Acceleration[0],
			&reading.Acceleration[1],
			&reading.Acceleration[2],
			&reading.BatteryPercent,
			&audio,
			&observed,
			&reading.Topic,
			&received,
		)
		if err != nil {
			return nil, err
		}

		if dock.Valid {
			reading.DockID = &dock.String
		}
		if audio.Valid {
			reading.AudioSegment = &audio.String
		}
		if reading.ObservedAt, err = database.ParseTime(observed); err != nil {
			return nil, fmt.Errorf("parse observed_at: %w", err)
		}
		if reading.ReceivedAt, err = database.ParseTime(received); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		items = append(items, &reading)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResult{Items: items}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ Repository = (*SQLiteRepository)(nil)

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		dock_id TEXT,
		temperature REAL NOT NULL DEFAULT 0,
		accel_x REAL NOT NULL DEFAULT 0,
		accel_y REAL NOT NULL DEFAULT 0,
		accel_z REAL NOT NULL DEFAULT 0,
		battery_percent INTEGER NOT NULL DEFAULT 0,
		audio_segment TEXT,
		observed_at TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_device_time ON readings(device_id, observed_at)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		reading_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		delivered_at TEXT,
		recipient_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_device_time ON alerts(device_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS recipients (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT 'FCM',
		push_token TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, device_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recipients_device ON recipients(device_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		dock_id TEXT,
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
		accel_x DOUBLE PRECISION NOT NULL DEFAULT 0,
		accel_y DOUBLE PRECISION NOT NULL DEFAULT 0,
		accel_z DOUBLE PRECISION NOT NULL DEFAULT 0,
		battery_percent INTEGER NOT NULL DEFAULT 0,
		audio_segment TEXT,
		observed_at TIMESTAMPTZ NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_device_time ON readings(device_id, observed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		reading_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at TIMESTAMPTZ,
		recipient_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_device_time ON alerts(device_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS recipients (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT 'FCM',
		push_token TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, device_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recipients_device ON recipients(device_id)`,
}

// InitSQLiteSchema ensures the telemetry tables exist.
func InitSQLiteSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

// InitPostgresSchema ensures the telemetry tables exist. Real deployments
// manage migrations separately; this keeps a fresh database usable.
func InitPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tagwatch/tagwatch/internal/alert"
	"github.com/tagwatch/tagwatch/internal/database"
	"github.com/tagwatch/tagwatch/internal/reading"
	"github.com/tagwatch/tagwatch/internal/recipient"
)

// stores bundles the repositories of one backend.
type stores struct {
	readings   reading.Repository
	alerts     alert.Repository
	recipients recipient.Repository
	close      func()
}

func openStores(ctx context.Context, cfg database.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.Driver {
	case database.DriverMemory:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		return &stores{
			readings:   reading.NewInMemoryRepository(),
			alerts:     alert.NewInMemoryRepository(),
			recipients: recipient.NewInMemoryRepository(),
			close:      func() {},
		}, nil

	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.InitSQLiteSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite database opened")
		return &stores{
			readings:   reading.NewSQLiteRepository(db),
			alerts:     alert.NewSQLiteRepository(db),
			recipients: recipient.NewSQLiteRepository(db),
			close:      func() { _ = db.Close() },
		}, nil

	case database.DriverPostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.InitPostgresSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Str("database", cfg.Database).
			Msg("database connected")
		return &stores{
			readings:   reading.NewPostgresRepository(pool),
			alerts:     alert.NewPostgresRepository(pool),
			recipients: recipient.NewPostgresRepository(pool),
			close:      pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

// ABOUTME: Builds an Adapter from the storage config section
// ABOUTME: A durable driver that cannot be opened degrades to the fallback chain

package storage

import (
	"context"
	"log/slog"

	"github.com/2389/coven-widget/internal/config"
)

// Open builds an Adapter for cfg. It never fails: a durable driver that cannot
// be opened is logged and left out, so the durable scope is served by the
// ephemeral driver as if persistence were disabled by the host.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	var durable Driver
	switch cfg.Durable {
	case config.DurableSQLite:
		d, err := NewSQLiteDriver(cfg.SQLitePath)
		if err != nil {
			logger.Warn("durable storage unavailable, using session memory",
				"driver", cfg.Durable, "error", err)
		} else {
			durable = d
		}
	case config.DurableRedis:
		d, err := NewRedisDriver(ctx, cfg.RedisURL, cfg.RedisPrefix, cfg.RedisTTL)
		if err != nil {
			logger.Warn("durable storage unavailable, using session memory",
				"driver", cfg.Durable, "error", err)
		} else {
			durable = d
		}
	default:
		durable = NewMemoryDriver()
	}

	return NewAdapter(durable, NewMemoryDriver(), logger)
}

package store

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/davidbond17/pingpro/internal/config"
)

// Open builds the Store selected by settings.Storage.
func Open(ctx context.Context, settings config.Settings, logger *log.Logger) (Store, error) {
	switch settings.Storage {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageBadger, "":
		return OpenBadger(BadgerConfig{
			Path:       filepath.Join(settings.DataDir, "sessions"),
			SyncWrites: true,
			Logger:     logger,
		})
	case config.StoragePostgres:
		pg, err := NewPostgresStore(ctx, settings.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", settings.Storage)
	}
}

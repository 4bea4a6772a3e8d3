// Package storage builds the configured domain.Store backend.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tutu-network/econ/internal/daemon"
	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/filestore"
	"github.com/tutu-network/econ/internal/infra/postgres"
	"github.com/tutu-network/econ/internal/infra/sqlite"
)

// Drivers lists the accepted storage.driver values.
var Drivers = []string{"sqlite", "postgres", "json", "memory"}

// Open returns the store selected by cfg.Storage.
func Open(ctx context.Context, cfg daemon.StorageConfig, logger *zap.Logger) (domain.Store, error) {
	logger = logger.With(zap.String("driver", cfg.Driver))

	var (
		store domain.Store
		err   error
	)
	switch cfg.Driver {
	case "sqlite":
		store, err = sqlite.Open(cfg.Path)
	case "postgres":
		store, err = postgres.New(ctx, logger, cfg.URL, postgres.DefaultPoolConfig())
	case "json":
		path := cfg.Path
		if !strings.HasSuffix(strings.ToLower(path), ".json") {
			path = filepath.Join(path, "econ.json")
		}
		store, err = filestore.Open(path)
	case "memory":
		store = filestore.NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage driver %q (want one of %s)", cfg.Driver, strings.Join(Drivers, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	logger.Info("Storage opened", zap.String("path", cfg.Path))
	return store, nil
}

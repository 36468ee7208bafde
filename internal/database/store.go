package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/config"
	"github.com/mesikahq/outbreak-exchange/internal/db/migrate"
	"github.com/mesikahq/outbreak-exchange/internal/store"
	"github.com/mesikahq/outbreak-exchange/internal/store/memory"
	"github.com/mesikahq/outbreak-exchange/internal/store/postgres"
	"github.com/mesikahq/outbreak-exchange/internal/store/sqlite"
)

// Handle is an open store plus the migration manager for its schema. The
// memory driver has no schema and a nil Migrations.
type Handle struct {
	Store      store.Store
	Migrations *migrate.Manager
}

func (h *Handle) Close() error {
	return h.Store.Close()
}

// OpenStore opens the store named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Handle, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to PostgreSQL", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
		return &Handle{
			Store:      postgres.New(pool),
			Migrations: migrate.NewPostgresManager(pool, logger),
		}, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened SQLite database", zap.String("path", cfg.SQLitePath))
		return &Handle{
			Store:      st,
			Migrations: migrate.NewSQLiteManager(st.DB(), logger),
		}, nil
	case "memory":
		logger.Warn("Using in-memory store, data is lost on exit")
		return &Handle{Store: memory.NewStore()}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Migrate applies pending migrations. It is a no-op for the memory driver.
func (h *Handle) Migrate(ctx context.Context) (int, error) {
	if h.Migrations == nil {
		return 0, nil
	}
	return h.Migrations.Up(ctx)
}

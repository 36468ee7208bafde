// Package app assembles the services a binary needs from a loaded Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/auth"
	"github.com/mesikahq/outbreak-exchange/internal/config"
	"github.com/mesikahq/outbreak-exchange/internal/database"
	"github.com/mesikahq/outbreak-exchange/internal/encryption"
	"github.com/mesikahq/outbreak-exchange/internal/metrics"
	"github.com/mesikahq/outbreak-exchange/internal/reporting"
)

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *database.Handle
	Audit   audit.Service
	Metrics *metrics.Metrics
	Reports reporting.Service
	Auth    auth.Service

	closers []func(context.Context) error
}

// New validates cfg, opens the store and audit backend and builds the
// services on top of them. Migrations are not applied; callers decide when to
// run them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	handle, err := database.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.DB = handle
	a.closers = append(a.closers, func(context.Context) error { return handle.Close() })

	encryptService, err := encryption.NewService(cfg.Security.EncryptionKey)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize encryption service: %w", err)
	}
	if cfg.Security.EncryptionKey == "" {
		logger.Warn("No encryption key configured, using a throwaway key for the memory driver")
	}

	a.Audit, err = a.openAudit(ctx, cfg.Audit)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.Reports = reporting.NewService(handle.Store, encryptService, a.Audit, logger, reporting.WithMetrics(a.Metrics))
	a.Auth = auth.NewService(handle.Store, a.Audit, logger, auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		CacheTTL:    cfg.Auth.PrincipalCacheTTL,
	})
	return a, nil
}

func (a *App) openAudit(ctx context.Context, cfg config.AuditConfig) (audit.Service, error) {
	switch cfg.Backend {
	case "elasticsearch":
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{cfg.ElasticsearchURL},
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
		}
		a.Logger.Info("Audit events go to Elasticsearch", zap.String("url", cfg.ElasticsearchURL))
		return audit.NewElasticsearchService(client, cfg.IndexPrefix), nil
	case "mongo":
		client, err := database.NewMongoClient(ctx, database.MongoConfig{URI: cfg.MongoURI})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		db := client.Database(cfg.MongoDatabase)
		if err := audit.EnsureIndexes(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to create audit indexes: %w", err)
		}
		a.Logger.Info("Audit events go to MongoDB", zap.String("database", cfg.MongoDatabase))
		return audit.NewMongoService(db), nil
	case "memory":
		a.Logger.Warn("Audit events are kept in memory only")
		return audit.NewMemoryService(), nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

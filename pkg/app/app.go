// Package app assembles the question pipeline from configuration. The server
// and the command line tools share it so both answer questions identically.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/sensorql/pkg/adapters/datasource/mssql"    // register mssql adapter
	_ "github.com/ekaya-inc/sensorql/pkg/adapters/datasource/postgres" // register postgres adapter
	_ "github.com/ekaya-inc/sensorql/pkg/adapters/datasource/sqlite"   // register sqlite adapter
	"github.com/ekaya-inc/sensorql/pkg/catalog"
	"github.com/ekaya-inc/sensorql/pkg/config"
	"github.com/ekaya-inc/sensorql/pkg/database"
	"github.com/ekaya-inc/sensorql/pkg/intent"
	"github.com/ekaya-inc/sensorql/pkg/llm"
	"github.com/ekaya-inc/sensorql/pkg/querybuilder"
	"github.com/ekaya-inc/sensorql/pkg/repositories"
	"github.com/ekaya-inc/sensorql/pkg/retry"
	"github.com/ekaya-inc/sensorql/pkg/services"
	"github.com/ekaya-inc/sensorql/pkg/temporal"
	"github.com/ekaya-inc/sensorql/pkg/vocabulary"
)

// App holds the wired pipeline and the resources it owns.
type App struct {
	Catalog  *catalog.Catalog
	Executor datasource.QueryExecutor
	Queries  services.QueryService
	Health   services.HealthService
	// History is nil when history is disabled.
	History services.QueryHistoryService

	historyDB *sql.DB
	redis     *redis.Client
	logger    *zap.Logger
}

// New builds every component named in cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Catalog, err = catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	vocab, err := vocabulary.New(a.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build vocabulary: %w", err)
	}
	extractor := intent.NewExtractor(a.Catalog, vocab, temporal.NewParser(), logger,
		intent.WithLimits(cfg.Query.DefaultLimit, cfg.Query.MaxLimit))

	dialect, err := querybuilder.ParseDialect(cfg.Backend.Type)
	if err != nil {
		return nil, err
	}
	builder := querybuilder.New(a.Catalog, dialect,
		querybuilder.WithLimits(cfg.Query.DefaultLimit, cfg.Query.MaxLimit))

	factory := datasource.NewDatasourceAdapterFactory(retry.DefaultConfig(), logger)
	a.Executor, err = factory.NewQueryExecutor(ctx, cfg.Backend.Type, cfg.Backend.BackendMap())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s backend: %w", cfg.Backend.Type, err)
	}

	opts := []services.QueryServiceOption{services.WithQueryTimeout(cfg.Query.Timeout)}

	if cfg.History.Enabled {
		a.historyDB, err = database.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		if err = database.RunHistoryMigrations(a.historyDB, logger); err != nil {
			return nil, err
		}
		a.History = services.NewQueryHistoryService(repositories.NewQueryHistoryRepository(a.historyDB), logger)
		opts = append(opts, services.WithHistory(a.History))
	}

	cache, err := a.newCache(ctx, &cfg.Cache)
	if err != nil {
		return nil, err
	}
	info := services.HealthInfo{
		Version:     cfg.Version,
		BackendType: cfg.Backend.Type,
		Tables:      len(a.Catalog.Tables()),
	}
	if cache != nil {
		opts = append(opts, services.WithResultCache(cache))
		info.Cache = cfg.Cache.Backend
	}

	if cfg.Fallback.Enabled() {
		client, err := llm.NewClientForProvider(ctx, &llm.Config{
			Provider: cfg.Fallback.Provider,
			Endpoint: cfg.Fallback.BaseURL,
			Model:    cfg.Fallback.Model,
			APIKey:   cfg.Fallback.APIKey,
			Timeout:  cfg.Fallback.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback client: %w", err)
		}
		opts = append(opts, services.WithFallback(services.NewFallbackInterpreter(client, extractor, a.Catalog,
			services.FallbackSettings{
				RequestsPerMinute: cfg.Fallback.RequestsPerMinute,
				Timeout:           cfg.Fallback.Timeout,
				Examples:          a.History,
			}, logger)))
		info.Fallback = cfg.Fallback.Provider
		logger.Info("LLM fallback enabled",
			zap.String("provider", cfg.Fallback.Provider),
			zap.String("model", cfg.Fallback.Model))
	}

	a.Health = services.NewHealthService(info, a.Executor, logger)
	a.Queries = services.NewQueryService(extractor, builder, a.Executor, logger, opts...)
	return a, nil
}

func (a *App) newCache(ctx context.Context, cfg *config.CacheConfig) (services.ResultCache, error) {
	if cfg.Size <= 0 {
		return nil, nil
	}
	if cfg.Backend != "redis" {
		return services.NewMemoryCache(cfg.Size, cfg.TTL), nil
	}
	client, err := database.NewRedisClient(ctx, &cfg.Redis, a.logger)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("cache backend is redis but no redis host is configured")
	}
	a.redis = client
	return services.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.TTL, a.logger), nil
}

// PruneHistory deletes history older than retention, then repeats every interval until ctx ends.
func (a *App) PruneHistory(ctx context.Context, retention, interval time.Duration) {
	if a.History == nil || retention <= 0 {
		return
	}
	prune := func() {
		n, err := a.History.Prune(ctx, retention)
		if err != nil {
			a.logger.Warn("Failed to prune query history", zap.Error(err))
			return
		}
		if n > 0 {
			a.logger.Info("Pruned query history", zap.Int64("deleted", n))
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// Close releases the backend connection and local stores.
func (a *App) Close() {
	if a.Executor != nil {
		if err := a.Executor.Close(); err != nil {
			a.logger.Warn("Failed to close backend", zap.Error(err))
		}
	}
	if a.historyDB != nil {
		if err := a.historyDB.Close(); err != nil {
			a.logger.Warn("Failed to close history store", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/flagship/migrations"
	"github.com/dmitrymomot/flagship/pkg/config"
	"github.com/dmitrymomot/flagship/pkg/feature"
	"github.com/dmitrymomot/flagship/pkg/fixtures"
	"github.com/dmitrymomot/flagship/pkg/httpserver"
	"github.com/dmitrymomot/flagship/pkg/idempotency"
	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/metrics"
	"github.com/dmitrymomot/flagship/pkg/pg"
	"github.com/dmitrymomot/flagship/pkg/queue"
	"github.com/dmitrymomot/flagship/pkg/redis"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

// backends are the data collaborators selected by STORAGE_BACKEND.
type backends struct {
	features feature.Provider
	limits   limits.Source
	usage    usage.Store
	tasks    queue.Storage
	checks   []httpserver.Check
	close    func()
}

func openBackends(ctx context.Context, cfg appConfig, queueCfg queue.Config, log *slog.Logger) (*backends, error) {
	switch cfg.Storage {
	case "postgres":
		return openPostgres(ctx, queueCfg, log)
	case "memory":
		return openMemory(ctx, cfg, queueCfg, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func openPostgres(ctx context.Context, queueCfg queue.Config, log *slog.Logger) (*backends, error) {
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	if pgCfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, pgCfg, migrations.FS, log.With(logger.Component("migrations"))); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &backends{
		features: feature.NewPgProvider(pool, log),
		limits:   limits.NewPgSource(pool),
		usage:    usage.NewPgStore(pool),
		tasks:    queue.NewPgStorage(pool, queueCfg.CompletedRetention),
		checks:   []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
		close:    closePool(pool),
	}, nil
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}

func openMemory(ctx context.Context, cfg appConfig, queueCfg queue.Config, log *slog.Logger) (*backends, error) {
	provider, err := feature.NewMemoryProvider()
	if err != nil {
		return nil, err
	}
	source, err := limits.NewMemorySource()
	if err != nil {
		return nil, err
	}

	if cfg.FixturesPath != "" {
		set, err := fixtures.LoadFile(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		if err := set.Apply(provider, source); err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "fixtures loaded",
			slog.String("path", cfg.FixturesPath),
			logger.Count("features", len(set.Features)),
			logger.Count("limits", len(set.Limits)),
		)
	} else {
		log.WarnContext(ctx, "memory storage without fixtures: every feature evaluates as not found")
	}

	tasks := queue.NewMemoryStorage(queue.WithCompletedRetention(queueCfg.CompletedRetention))
	return &backends{
		features: provider,
		limits:   source,
		usage:    usage.NewMemoryStore(),
		tasks:    tasks,
		close:    func() { _ = tasks.Close() },
	}, nil
}

// idempotencyService wraps the claim service with its backend lifecycle.
type idempotencyService struct {
	service *idempotency.Service
	checks  []httpserver.Check
	close   func()
}

func openIdempotency(ctx context.Context, g *errgroup.Group, cfg appConfig, usageCfg usage.Config, collector *metrics.Collector, log *slog.Logger) (*idempotencyService, error) {
	opts := []idempotency.Option{
		idempotency.WithTTL(usageCfg.IdempotencyTTL),
		idempotency.WithLogger(log),
		idempotency.WithMetrics(collector),
	}

	switch cfg.IdempotencyBackend {
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, err
		}
		if !redisCfg.Enabled() {
			log.WarnContext(ctx, "REDIS_URL not set, idempotency disabled")
			return disabledIdempotency(opts), nil
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		return &idempotencyService{
			service: idempotency.NewService(idempotency.NewRedisBackend(client), opts...),
			checks:  []httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}},
			close:   closeClient(client, log),
		}, nil

	case "memory":
		backend := idempotency.NewMemoryBackend()
		if cfg.IdempotencySweep > 0 {
			g.Go(func() error {
				backend.RunSweeper(ctx, cfg.IdempotencySweep)
				return nil
			})
		}
		return &idempotencyService{
			service: idempotency.NewService(backend, opts...),
			close:   func() {},
		}, nil

	case "none":
		log.WarnContext(ctx, "idempotency disabled")
		return disabledIdempotency(opts), nil

	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.IdempotencyBackend)
	}
}

func disabledIdempotency(opts []idempotency.Option) *idempotencyService {
	return &idempotencyService{
		service: idempotency.NewService(nil, opts...),
		close:   func() {},
	}
}

func closeClient(client *goredis.Client, log *slog.Logger) func() {
	return func() {
		if err := client.Close(); err != nil {
			log.Error("failed to close redis client", logger.Error(err))
		}
	}
}

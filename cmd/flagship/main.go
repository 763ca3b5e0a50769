package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/flagship/modules/flagship"
	"github.com/dmitrymomot/flagship/pkg/config"
	"github.com/dmitrymomot/flagship/pkg/evaluation"
	"github.com/dmitrymomot/flagship/pkg/feature"
	"github.com/dmitrymomot/flagship/pkg/httpserver"
	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/metrics"
	"github.com/dmitrymomot/flagship/pkg/queue"
	"github.com/dmitrymomot/flagship/pkg/tenant"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

// appConfig holds the process-level switches. Component settings live in
// each package's own Config.
type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"flagship"`

	// Storage is "postgres" or "memory". Memory mode seeds features and
	// limits from FixturesPath and keeps counters and tasks in process.
	Storage      string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	FixturesPath string `env:"FIXTURES_PATH"`

	// IdempotencyBackend is "redis", "memory" or "none". The sweep interval
	// applies to the memory backend only.
	IdempotencyBackend string        `env:"IDEMPOTENCY_BACKEND" envDefault:"redis"`
	IdempotencySweep   time.Duration `env:"IDEMPOTENCY_SWEEP_INTERVAL" envDefault:"1m"`

	RunWorker     bool `env:"WORKER_ENABLED" envDefault:"true"`
	DeadLetterAPI bool `env:"DEAD_LETTER_API_ENABLED" envDefault:"true"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithContextExtractors(
			tenant.LoggerExtractor(),
			flagship.RequestIDExtractor(),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("flagship stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("flagship stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	var (
		metricsCfg metrics.Config
		httpCfg    httpserver.Config
		queueCfg   queue.Config
		usageCfg   usage.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&metricsCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&queueCfg) },
		func() error { return config.Load(&usageCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	var collector *metrics.Collector
	if metricsCfg.Enabled {
		collector = metrics.New(metricsCfg)
	}

	g, ctx := errgroup.WithContext(ctx)

	b, err := openBackends(ctx, cfg, queueCfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	idem, err := openIdempotency(ctx, g, cfg, usageCfg, collector, log)
	if err != nil {
		return err
	}
	defer idem.close()

	features := feature.NewEvaluator(b.features)
	limitEval := limits.NewEvaluator(b.limits, b.usage)
	evaluator := evaluation.NewService(features, limitEval,
		evaluation.WithLogger(log),
		evaluation.WithMetrics(collector),
	)
	ingestor := usage.NewIngestor(b.usage, idem.service, b.limits,
		usage.WithLogger(log),
		usage.WithMetrics(collector),
	)

	enqueuer, err := queue.NewEnqueuer(b.tasks, queue.WithDefaultQueue(usage.QueueName))
	if err != nil {
		return err
	}

	opts := flagship.RouterOptions{
		Evaluator:   evaluator,
		Ingestor:    ingestor,
		Queue:       usage.NewIngestQueue(enqueuer, usageCfg),
		Logger:      log,
		ReadyChecks: append(b.checks, idem.checks...),
	}
	if cfg.DeadLetterAPI {
		opts.DeadLetters = b.tasks
	}
	if collector != nil {
		opts.Metrics = collector.Handler()
	}

	if cfg.RunWorker {
		worker, err := queue.NewWorker(b.tasks,
			queue.FromConfig(queueCfg),
			queue.WithQueues(usage.QueueName),
			queue.WithWorkerLogger(log),
			queue.WithWorkerMetrics(collector),
		)
		if err != nil {
			return err
		}
		if err := worker.RegisterHandler(ingestor.JobHandler()); err != nil {
			return err
		}
		g.Go(worker.Run(ctx))
	}

	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	g.Go(func() error {
		return server.Run(ctx, flagship.Router(opts))
	})

	log.Info("flagship started",
		slog.String("storage", cfg.Storage),
		slog.String("idempotency", cfg.IdempotencyBackend),
		slog.Bool("worker", cfg.RunWorker),
		slog.String("addr", httpCfg.Addr),
	)
	return g.Wait()
}

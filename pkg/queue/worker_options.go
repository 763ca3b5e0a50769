package queue

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagship/pkg/metrics"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	lockCheckInterval  time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
	metrics            *metrics.Collector
}

// WithQueues sets which queues the worker should pull from
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often the worker checks for new tasks
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets the lock duration for tasks
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithLockCheckInterval sets how often expired locks are recovered when the
// repository supports it
func WithLockCheckInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockCheckInterval = d
		}
	}
}

// WithMaxConcurrentTasks sets the maximum number of concurrent tasks
func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerMetrics records task outcomes and durations
func WithWorkerMetrics(m *metrics.Collector) WorkerOption {
	return func(o *workerOptions) {
		o.metrics = m
	}
}

// FromConfig applies the worker related settings of cfg
func FromConfig(cfg Config) WorkerOption {
	return func(o *workerOptions) {
		for _, opt := range []WorkerOption{
			WithPullInterval(cfg.PollInterval),
			WithLockTimeout(cfg.LockTimeout),
			WithLockCheckInterval(cfg.LockCheckInterval),
			WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
		} {
			opt(o)
		}
	}
}

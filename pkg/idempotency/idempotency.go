package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/metrics"
)

// DefaultTTL is how long a claim blocks repeats of the same key.
const DefaultTTL = 24 * time.Hour

// Backend is an atomic key/value store with expiry.
type Backend interface {
	// SetNX stores value under key only if key is absent and reports whether
	// the write happened. It must be a single atomic operation.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Service claims idempotency keys per scope. Backend failures fail open:
// the event is treated as new, the error is logged and counted.
type Service struct {
	backend Backend
	ttl     time.Duration
	log     *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a Service over backend. A nil backend disables
// deduplication entirely: every key is reported as new.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		ttl:     DefaultTTL,
		log:     logger.Noop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("idempotency"))
	return s
}

// Key builds the storage key for (scope, key).
func Key(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}

// CheckAndSet claims key within scope and reports whether it had already
// been claimed. Among concurrent callers on the same pair exactly one sees
// false while the claim lives.
func (s *Service) CheckAndSet(ctx context.Context, scope, key string) bool {
	if s == nil || s.backend == nil {
		return false
	}

	stamp := s.now().UTC().Format(time.RFC3339Nano)
	set, err := s.backend.SetNX(ctx, Key(scope, key), stamp, s.ttl)
	if err != nil {
		s.fail(ctx, "check_and_set", scope, err)
		return false
	}
	return !set
}

// IsProcessed reports whether key has a live claim in scope without
// claiming it.
func (s *Service) IsProcessed(ctx context.Context, scope, key string) bool {
	if s == nil || s.backend == nil {
		return false
	}

	ok, err := s.backend.Exists(ctx, Key(scope, key))
	if err != nil {
		s.fail(ctx, "is_processed", scope, err)
		return false
	}
	return ok
}

// Release drops a claim so the same key can be applied again. Used when the
// claimed event could not be recorded.
func (s *Service) Release(ctx context.Context, scope, key string) {
	if s == nil || s.backend == nil {
		return
	}

	if err := s.backend.Delete(ctx, Key(scope, key)); err != nil {
		s.fail(ctx, "release", scope, err)
	}
}

func (s *Service) fail(ctx context.Context, op, scope string, err error) {
	s.metrics.IdempotencyFailure(op)
	s.log.ErrorContext(ctx, "idempotency backend unavailable, treating key as new",
		slog.String("op", op),
		logger.EnvironmentID(scope),
		logger.Error(err),
	)
}

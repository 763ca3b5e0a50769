package evaluation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/flagship/pkg/feature"
	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/metrics"
	"github.com/dmitrymomot/flagship/pkg/tenant"
)

// FeatureEvaluator is satisfied by *feature.Evaluator.
type FeatureEvaluator interface {
	EvaluateFeatures(ctx context.Context, keys []string, ec feature.EvalContext) (map[string]feature.Result, error)
}

// LimitEvaluator is satisfied by *limits.Evaluator.
type LimitEvaluator interface {
	EvaluateLimits(ctx context.Context, keys []string, ec limits.EvalContext) (map[string]limits.Result, error)
}

// Request lists what to evaluate. Context carries request attributes such as
// userId that override conditions and rollouts look at.
type Request struct {
	Features []string       `json:"features,omitempty"`
	Limits   []string       `json:"limits,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	Debug    bool           `json:"debug,omitempty"`
}

type Response struct {
	RequestID   string                    `json:"requestId"`
	EvaluatedAt time.Time                 `json:"evaluatedAt"`
	Features    map[string]feature.Result `json:"features"`
	Limits      map[string]limits.Result  `json:"limits"`
}

// Service evaluates features and limits of one request concurrently.
type Service struct {
	features FeatureEvaluator
	limits   LimitEvaluator
	log      *slog.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

type Option func(*Service)

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

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(features FeatureEvaluator, limits LimitEvaluator, opts ...Option) *Service {
	s := &Service{
		features: features,
		limits:   limits,
		log:      logger.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("evaluation"))
	return s
}

// Evaluate answers req for scope. Empty feature or limit lists yield empty
// maps without touching the corresponding evaluator. An error on either
// side fails the whole call. Reasons are always computed for metrics and
// only returned when req.Debug is set.
func (s *Service) Evaluate(ctx context.Context, req Request, scope tenant.Scope) (*Response, error) {
	start := s.now()
	resp := &Response{
		RequestID:   uuid.NewString(),
		EvaluatedAt: start.UTC(),
		Features:    map[string]feature.Result{},
		Limits:      map[string]limits.Result{},
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(req.Features) > 0 {
		g.Go(func() error {
			res, err := s.features.EvaluateFeatures(gctx, req.Features, feature.EvalContext{
				ProjectID:     scope.ProjectID,
				EnvironmentID: scope.EnvironmentID,
				OrgID:         scope.OrgID,
				PlanID:        scope.PlanID,
				Attributes:    req.Context,
				Debug:         true,
			})
			if err != nil {
				return err
			}
			resp.Features = res
			return nil
		})
	}
	if len(req.Limits) > 0 {
		g.Go(func() error {
			res, err := s.limits.EvaluateLimits(gctx, req.Limits, limits.EvalContext{
				EnvironmentID: scope.EnvironmentID,
				OrgID:         scope.OrgID,
				PlanID:        scope.PlanID,
				Debug:         true,
			})
			if err != nil {
				return err
			}
			resp.Limits = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.ErrorContext(ctx, "evaluation failed",
			logger.RequestID(resp.RequestID),
			logger.Scope(scope.ProjectID, scope.EnvironmentID, scope.OrgID),
			logger.Error(err),
		)
		return nil, err
	}

	elapsed := s.now().Sub(start)
	s.record(resp, elapsed)
	if !req.Debug {
		stripReasons(resp)
	}
	s.log.DebugContext(ctx, "evaluation completed",
		logger.RequestID(resp.RequestID),
		logger.EnvironmentID(scope.EnvironmentID),
		logger.Count("features", len(resp.Features)),
		logger.Count("limits", len(resp.Limits)),
		logger.Duration(elapsed),
	)
	return resp, nil
}

func (s *Service) record(resp *Response, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.EvaluationObserved(elapsed)
	for _, r := range resp.Features {
		s.metrics.FeatureEvaluated(string(r.Reason))
	}
	for _, r := range resp.Limits {
		s.metrics.LimitEvaluated(string(r.Reason))
	}
}

func stripReasons(resp *Response) {
	for k, r := range resp.Features {
		r.Reason = ""
		resp.Features[k] = r
	}
	for k, r := range resp.Limits {
		r.Reason = ""
		resp.Limits[k] = r
	}
}

package usage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagship/pkg/idempotency"
	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/metrics"
	"github.com/dmitrymomot/flagship/pkg/tenant"
)

// Accepted timestamp window relative to processing time.
const (
	MaxFutureSkew = time.Hour
	MaxPastAge    = 7 * 24 * time.Hour
)

// Per-event rejection reasons.
const (
	ReasonTimestampFuture  = "Timestamp too far in future (max 1 hour)"
	ReasonTimestampPast    = "Timestamp too far in past (max 7 days)"
	ReasonProcessingFailed = "processing_failed"
)

// Options tunes one Ingest call. An empty RequestID gets a fresh one.
type Options struct {
	IncludeSummary bool
	RequestID      string
}

// EventError explains why the event at Index was rejected.
type EventError struct {
	Index  int    `json:"index"`
	Metric string `json:"metric"`
	Reason string `json:"reason"`
}

// MetricSummary reports a metric after ingestion. Limit and Remaining are
// limits.Unlimited when no limit applies.
type MetricSummary struct {
	Current   int64 `json:"current"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

type IngestResult struct {
	RequestID   string                   `json:"requestId"`
	ProcessedAt time.Time                `json:"processedAt"`
	Accepted    int                      `json:"accepted"`
	Rejected    int                      `json:"rejected"`
	Errors      []EventError             `json:"errors,omitempty"`
	Summary     map[string]MetricSummary `json:"summary,omitempty"`

	// Duplicates counts events skipped by idempotency; they are neither
	// accepted nor rejected.
	Duplicates int `json:"-"`
}

// Failed reports whether any event could not be recorded.
func (r *IngestResult) Failed() bool {
	return slices.ContainsFunc(r.Errors, func(e EventError) bool { return e.Reason == ReasonProcessingFailed })
}

// Ingestor applies usage events to counters.
type Ingestor struct {
	store   Store
	idem    *idempotency.Service
	limits  limits.Source
	log     *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

type Option func(*Ingestor)

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.log = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIngestor wires the counter store, the idempotency service (nil
// disables deduplication) and the limit source used for summaries.
func NewIngestor(store Store, idem *idempotency.Service, limitSource limits.Source, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:  store,
		idem:   idem,
		limits: limitSource,
		log:    logger.Noop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.log = i.log.With(logger.Component("usage.ingestor"))
	return i
}

// Ingest applies events in input order for scope. Each event is handled
// independently: duplicates are skipped, out-of-window timestamps and
// failed increments are reported in Errors, the rest are accepted.
// The error return is reserved for invalid batches and summary lookups.
func (i *Ingestor) Ingest(ctx context.Context, events []Event, scope tenant.Scope, opts Options) (*IngestResult, error) {
	if err := ValidateEvents(events); err != nil {
		return nil, err
	}

	now := i.now().UTC()
	res := &IngestResult{
		RequestID:   opts.RequestID,
		ProcessedAt: now,
	}
	if res.RequestID == "" {
		res.RequestID = uuid.NewString()
	}

	var (
		failed  int
		touched []string
		current = make(map[string]int64)
	)
	reject := func(idx int, ev Event, reason string) {
		res.Rejected++
		res.Errors = append(res.Errors, EventError{Index: idx, Metric: ev.Metric, Reason: reason})
	}

	for idx, ev := range events {
		if ev.IdempotencyKey != "" && i.idem.CheckAndSet(ctx, scope.EnvironmentID, ev.IdempotencyKey) {
			res.Duplicates++
			continue
		}

		ts := now
		if ev.Timestamp != nil {
			ts = ev.Timestamp.UTC()
			if ts.After(now.Add(MaxFutureSkew)) {
				reject(idx, ev, ReasonTimestampFuture)
				continue
			}
			if ts.Before(now.Add(-MaxPastAge)) {
				reject(idx, ev, ReasonTimestampPast)
				continue
			}
		}

		value, err := i.store.IncrementUsage(ctx, scope.EnvironmentID, scope.OrgID, ev.Metric, ev.Delta, ts)
		if err != nil {
			failed++
			reject(idx, ev, ReasonProcessingFailed)
			i.log.ErrorContext(ctx, "failed to record usage event",
				logger.RequestID(res.RequestID),
				logger.EnvironmentID(scope.EnvironmentID),
				logger.OrgID(scope.OrgID),
				logger.Metric(ev.Metric),
				slog.Int("index", idx),
				logger.Error(err),
			)
			if ev.IdempotencyKey != "" {
				i.idem.Release(ctx, scope.EnvironmentID, ev.IdempotencyKey)
			}
			continue
		}

		if _, seen := current[ev.Metric]; !seen {
			touched = append(touched, ev.Metric)
		}
		current[ev.Metric] = value
	}
	res.Accepted = len(events) - res.Rejected - res.Duplicates

	i.metrics.UsageEvents(metrics.OutcomeAccepted, res.Accepted)
	i.metrics.UsageEvents(metrics.OutcomeDuplicate, res.Duplicates)
	i.metrics.UsageEvents(metrics.OutcomeRejected, res.Rejected-failed)
	i.metrics.UsageEvents(metrics.OutcomeFailed, failed)

	if opts.IncludeSummary && len(touched) > 0 {
		summary, err := i.summarize(ctx, scope, touched, current)
		if err != nil {
			return nil, err
		}
		res.Summary = summary
	}

	i.log.DebugContext(ctx, "usage batch ingested",
		logger.RequestID(res.RequestID),
		logger.EnvironmentID(scope.EnvironmentID),
		logger.OrgID(scope.OrgID),
		logger.Count("accepted", res.Accepted),
		logger.Count("rejected", res.Rejected),
		logger.Count("duplicates", res.Duplicates),
	)
	return res, nil
}

func (i *Ingestor) summarize(ctx context.Context, scope tenant.Scope, keys []string, current map[string]int64) (map[string]MetricSummary, error) {
	found, err := i.limits.Limits(ctx, scope.EnvironmentID, scope.PlanID, keys)
	if err != nil {
		return nil, fmt.Errorf("load limits for summary: %w", err)
	}

	out := make(map[string]MetricSummary, len(keys))
	for _, key := range keys {
		s := MetricSummary{Current: current[key], Limit: limits.Unlimited, Remaining: limits.Unlimited}
		if l, ok := found[key]; ok {
			s.Limit = l.LimitValue
			s.Remaining = max(0, l.LimitValue-s.Current)
		}
		out[key] = s
	}
	return out, nil
}

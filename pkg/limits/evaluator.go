package limits

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// EvalContext identifies whose usage is checked.
type EvalContext struct {
	EnvironmentID string
	OrgID         string
	PlanID        string
	Debug         bool
}

// Evaluator checks metrics against their effective limits.
type Evaluator struct {
	limits Source
	usage  UsageReader
	now    func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time used to pick the current usage period.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEvaluator(limits Source, usage UsageReader, opts ...Option) *Evaluator {
	e := &Evaluator{limits: limits, usage: usage, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateLimits decides every key. Usage and limits are fetched
// concurrently, one round trip each. Reasons are stripped unless ec.Debug.
func (e *Evaluator) EvaluateLimits(ctx context.Context, keys []string, ec EvalContext) (map[string]Result, error) {
	out := make(map[string]Result, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	now := e.now().UTC()

	var (
		current map[string]int64
		found   map[string]UsageLimit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = e.usage.CurrentUsage(gctx, ec.EnvironmentID, ec.OrgID, keys, now)
		if err != nil {
			return errors.Join(ErrFailedToLoadUsage, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		found, err = e.limits.Limits(gctx, ec.EnvironmentID, ec.PlanID, keys)
		if err != nil {
			return errors.Join(ErrFailedToLoadLimits, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, key := range keys {
		var limit *UsageLimit
		if l, ok := found[key]; ok {
			limit = &l
		}
		res := Evaluate(limit, current[key])
		if !ec.Debug {
			res.Reason = ""
		}
		out[key] = res
	}
	return out, nil
}

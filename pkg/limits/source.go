package limits

import (
	"context"
	"time"
)

// Source loads usage limits.
type Source interface {
	// Limits returns the effective limit per metric for planID in
	// environmentID: the plan-specific limit when one exists, otherwise the
	// environment default. Metrics without any limit are absent.
	Limits(ctx context.Context, environmentID, planID string, metricKeys []string) (map[string]UsageLimit, error)
}

// UsageReader reports current counter values. usage.Store satisfies it.
type UsageReader interface {
	CurrentUsage(ctx context.Context, environmentID, orgID string, metricKeys []string, at time.Time) (map[string]int64, error)
}

// ResolveLimits picks the effective limit per metric out of candidates
// matching the environment: a limit for planID beats the default one.
// Candidates of other plans are ignored.
func ResolveLimits(candidates []UsageLimit, planID string) map[string]UsageLimit {
	out := make(map[string]UsageLimit, len(candidates))
	for _, l := range candidates {
		switch {
		case l.PlanID == "":
			if _, ok := out[l.MetricKey]; !ok {
				out[l.MetricKey] = l
			}
		case planID != "" && l.PlanID == planID:
			out[l.MetricKey] = l
		}
	}
	return out
}

// Lookup returns the effective limit for a single metric, or nil when none
// applies.
func Lookup(ctx context.Context, src Source, environmentID, planID, metricKey string) (*UsageLimit, error) {
	found, err := src.Limits(ctx, environmentID, planID, []string{metricKey})
	if err != nil {
		return nil, err
	}
	l, ok := found[metricKey]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

package usage

import (
	"context"
	"time"
)

// Counter is one period bucket of a usage metric.
type Counter struct {
	EnvironmentID string
	OrgID         string
	MetricKey     string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	CurrentValue  int64
	LastUpdatedAt time.Time
}

// Store persists period-bucketed usage counters. Implementations must make
// IncrementUsage atomic per (environment, org, metric, period).
type Store interface {
	// IncrementUsage adds delta to the counter of the month containing ts and
	// returns the value after the update. A counter that does not exist yet is
	// created with max(0, delta).
	IncrementUsage(ctx context.Context, environmentID, orgID, metricKey string, delta int64, ts time.Time) (int64, error)

	// CurrentUsage returns the value of each metric whose period contains at.
	// Metrics without a counter are absent from the result.
	CurrentUsage(ctx context.Context, environmentID, orgID string, metricKeys []string, at time.Time) (map[string]int64, error)
}

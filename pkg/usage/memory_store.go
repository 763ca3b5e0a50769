package usage

import (
	"context"
	"sync"
	"time"
)

type counterKey struct {
	environmentID string
	orgID         string
	metricKey     string
	periodStart   int64
}

// MemoryStore is a Store for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[counterKey]*Counter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[counterKey]*Counter),
		now:      time.Now,
	}
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, environmentID, orgID, metricKey string, delta int64, ts time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	period := CalculatePeriodBoundaries(ts)
	key := counterKey{environmentID, orgID, metricKey, period.Start.UnixMilli()}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &Counter{
			EnvironmentID: environmentID,
			OrgID:         orgID,
			MetricKey:     metricKey,
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
			CurrentValue:  max(delta, 0),
			LastUpdatedAt: s.now(),
		}
		s.counters[key] = c
		return c.CurrentValue, nil
	}

	c.CurrentValue += delta
	c.LastUpdatedAt = s.now()
	return c.CurrentValue, nil
}

func (s *MemoryStore) CurrentUsage(ctx context.Context, environmentID, orgID string, metricKeys []string, at time.Time) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	period := CalculatePeriodBoundaries(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(metricKeys))
	for _, m := range metricKeys {
		if c, ok := s.counters[counterKey{environmentID, orgID, m, period.Start.UnixMilli()}]; ok {
			out[m] = c.CurrentValue
		}
	}
	return out, nil
}

// Counters returns a snapshot of every counter. Order is unspecified.
func (s *MemoryStore) Counters() []Counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Counter, 0, len(s.counters))
	for _, c := range s.counters {
		out = append(out, *c)
	}
	return out
}

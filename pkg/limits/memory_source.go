package limits

import (
	"context"
	"fmt"
	"sync"
)

type limitKey struct {
	environmentID string
	planID        string
	metricKey     string
}

// MemorySource implements Source over an in-memory set of limits.
type MemorySource struct {
	mu     sync.RWMutex
	limits map[limitKey]UsageLimit
}

// NewMemorySource validates and stores the given limits.
func NewMemorySource(limits ...UsageLimit) (*MemorySource, error) {
	s := &MemorySource{limits: make(map[limitKey]UsageLimit, len(limits))}
	for _, l := range limits {
		if err := s.Add(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add stores l. Only one limit may exist per (environment, plan, metric).
func (s *MemorySource) Add(l UsageLimit) error {
	if err := l.Validate(); err != nil {
		return err
	}
	k := limitKey{l.EnvironmentID, l.PlanID, l.MetricKey}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.limits[k]; ok {
		return fmt.Errorf("%w: %s plan %q metric %q", ErrDuplicateLimit, l.EnvironmentID, l.PlanID, l.MetricKey)
	}
	s.limits[k] = l
	return nil
}

func (s *MemorySource) Limits(ctx context.Context, environmentID, planID string, metricKeys []string) (map[string]UsageLimit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]UsageLimit, 0, len(metricKeys)*2)
	for _, m := range metricKeys {
		if l, ok := s.limits[limitKey{environmentID, "", m}]; ok {
			candidates = append(candidates, l)
		}
		if planID == "" {
			continue
		}
		if l, ok := s.limits[limitKey{environmentID, planID, m}]; ok {
			candidates = append(candidates, l)
		}
	}
	return ResolveLimits(candidates, planID), nil
}

package feature

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type entitlementKey struct {
	planID    string
	featureID string
}

// MemoryProvider serves features from memory. Used by tests and by the
// fixtures-backed local mode.
type MemoryProvider struct {
	mu           sync.RWMutex
	features     map[string]map[string]*Feature // project -> key -> feature
	entitlements map[entitlementKey]bool
}

// NewMemoryProvider validates and stores the given features.
func NewMemoryProvider(features ...Feature) (*MemoryProvider, error) {
	p := &MemoryProvider{
		features:     make(map[string]map[string]*Feature),
		entitlements: make(map[entitlementKey]bool),
	}
	for _, f := range features {
		if err := p.Put(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Put adds or replaces a feature together with all of its rules.
// A missing ID defaults to "<project>:<key>".
func (p *MemoryProvider) Put(f Feature) error {
	if f.ProjectID == "" || f.Key == "" {
		return errors.Join(ErrInvalidFeature, errors.New("project id and key are required"))
	}
	switch f.Type {
	case TypeBoolean, TypePercentage, TypePlan:
	default:
		return errors.Join(ErrInvalidFeature, fmt.Errorf("unknown type %q", f.Type))
	}
	if f.ID == "" {
		f.ID = f.ProjectID + ":" + f.Key
	}

	seen := make(map[[2]string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("feature %q: %w", f.Key, err)
		}
		k := [2]string{r.EnvironmentID, string(r.Type)}
		if seen[k] {
			return fmt.Errorf("%w: feature %q environment %q type %s", ErrDuplicateRule, f.Key, r.EnvironmentID, r.Type)
		}
		seen[k] = true
	}

	cp := cloneFeature(&f, nil)
	for i := range cp.Rules {
		cp.Rules[i].FeatureID = cp.ID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.features[f.ProjectID] == nil {
		p.features[f.ProjectID] = make(map[string]*Feature)
	}
	p.features[f.ProjectID][f.Key] = cp
	return nil
}

// SetEntitlement records plan access for a feature ID.
func (p *MemoryProvider) SetEntitlement(e Entitlement) {
	p.mu.Lock()
	p.entitlements[entitlementKey{e.PlanID, e.FeatureID}] = e.Enabled
	p.mu.Unlock()
}

func (p *MemoryProvider) FindFeaturesWithRules(ctx context.Context, projectID, environmentID string, keys []string) (map[string]*Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]*Feature, len(keys))
	byKey := p.features[projectID]
	for _, k := range keys {
		f, ok := byKey[k]
		if !ok {
			continue
		}
		out[k] = cloneFeature(f, func(r Rule) bool {
			return r.Enabled && r.EnvironmentID == environmentID
		})
	}
	return out, nil
}

func (p *MemoryProvider) IsFeatureInPlan(ctx context.Context, featureID, planID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entitlements[entitlementKey{planID, featureID}], nil
}

// cloneFeature copies f, keeping only rules accepted by keep (all when nil),
// ordered by descending priority.
func cloneFeature(f *Feature, keep func(Rule) bool) *Feature {
	cp := *f
	cp.Metadata = maps.Clone(f.Metadata)
	cp.Rules = make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		if keep == nil || keep(r) {
			cp.Rules = append(cp.Rules, r)
		}
	}
	slices.SortStableFunc(cp.Rules, func(a, b Rule) int { return cmp.Compare(b.Priority, a.Priority) })
	return &cp
}

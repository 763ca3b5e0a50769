package fixtures

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/flagship/pkg/feature"
	"github.com/dmitrymomot/flagship/pkg/limits"
)

// File is the on-disk shape of a fixtures document.
type File struct {
	Features     []FeatureSpec       `yaml:"features"`
	Entitlements []EntitlementSpec   `yaml:"entitlements"`
	Limits       []limits.UsageLimit `yaml:"limits"`
}

type FeatureSpec struct {
	ID       string         `yaml:"id"`
	Project  string         `yaml:"project"`
	Key      string         `yaml:"key"`
	Name     string         `yaml:"name"`
	Type     feature.Type   `yaml:"type"`
	Default  bool           `yaml:"default"`
	Enabled  *bool          `yaml:"enabled"`
	Metadata map[string]any `yaml:"metadata"`
	Rules    []RuleSpec     `yaml:"rules"`
}

type RuleSpec struct {
	ID          string           `yaml:"id"`
	Environment string           `yaml:"environment"`
	Type        feature.RuleType `yaml:"type"`
	Priority    int              `yaml:"priority"`
	Enabled     *bool            `yaml:"enabled"`
	Value       map[string]any   `yaml:"value"`
}

// EntitlementSpec grants Plan access to Feature, given as a feature ID or
// as "<project>:<key>" for features without an explicit ID.
type EntitlementSpec struct {
	Plan    string `yaml:"plan"`
	Feature string `yaml:"feature"`
	Enabled *bool  `yaml:"enabled"`
}

// Set is a decoded, validated fixtures document.
type Set struct {
	Features     []feature.Feature
	Entitlements []feature.Entitlement
	Limits       []limits.UsageLimit
}

// LoadFile reads fixtures from path.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToRead, err)
	}
	defer f.Close()

	set, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("fixtures %q: %w", path, err)
	}
	return set, nil
}

// Load decodes and validates a YAML fixtures document. Unknown keys are
// rejected. Omitted enabled flags default to true.
func Load(r io.Reader) (*Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrFailedToParse, err)
	}

	set := &Set{}
	for i, fs := range file.Features {
		f, err := fs.feature()
		if err != nil {
			return nil, fmt.Errorf("%w: features[%d]: %w", ErrInvalidFixture, i, err)
		}
		set.Features = append(set.Features, f)
	}
	for _, es := range file.Entitlements {
		set.Entitlements = append(set.Entitlements, feature.Entitlement{
			PlanID:    es.Plan,
			FeatureID: es.Feature,
			Enabled:   enabled(es.Enabled),
		})
	}
	for i, l := range file.Limits {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("%w: limits[%d]: %w", ErrInvalidFixture, i, err)
		}
		set.Limits = append(set.Limits, l)
	}
	return set, nil
}

func (fs FeatureSpec) feature() (feature.Feature, error) {
	f := feature.Feature{
		ID:           fs.ID,
		ProjectID:    fs.Project,
		Key:          fs.Key,
		Name:         fs.Name,
		Type:         fs.Type,
		DefaultValue: fs.Default,
		Enabled:      enabled(fs.Enabled),
		Metadata:     fs.Metadata,
	}
	for j, rs := range fs.Rules {
		raw, err := json.Marshal(rs.Value)
		if err != nil {
			return feature.Feature{}, fmt.Errorf("rules[%d]: %w", j, err)
		}
		value, err := feature.DecodeRuleValue(rs.Type, raw)
		if err != nil {
			return feature.Feature{}, fmt.Errorf("rules[%d]: %w", j, err)
		}
		f.Rules = append(f.Rules, feature.Rule{
			ID:            rs.ID,
			EnvironmentID: rs.Environment,
			Type:          rs.Type,
			Priority:      rs.Priority,
			Enabled:       enabled(rs.Enabled),
			Value:         value,
		})
	}
	return f, nil
}

// Apply loads the set into in-memory stores.
func (s *Set) Apply(provider *feature.MemoryProvider, source *limits.MemorySource) error {
	for _, f := range s.Features {
		if err := provider.Put(f); err != nil {
			return errors.Join(ErrInvalidFixture, err)
		}
	}
	for _, e := range s.Entitlements {
		provider.SetEntitlement(e)
	}
	for _, l := range s.Limits {
		if err := source.Add(l); err != nil {
			return errors.Join(ErrInvalidFixture, err)
		}
	}
	return nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}

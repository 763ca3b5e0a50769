package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// RuleType discriminates the payload of a Rule.
type RuleType string

const (
	RuleOverride   RuleType = "override"
	RulePercentage RuleType = "percentage"
	RulePlanGate   RuleType = "plan_gate"
)

// Rule is an environment-scoped rule attached to a feature. Higher Priority
// is evaluated first. At most one rule exists per (feature, environment,
// type).
type Rule struct {
	ID            string
	FeatureID     string
	EnvironmentID string
	Type          RuleType
	Priority      int
	Enabled       bool
	Value         RuleValue
}

// RuleValue is one of OverrideValue, PercentageValue or PlanGateValue.
type RuleValue interface {
	RuleType() RuleType
	Validate() error
}

// OverrideValue forces Enabled when every condition equals the matching
// request attribute. No conditions match every request.
type OverrideValue struct {
	Enabled    bool           `json:"enabled"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

func (OverrideValue) RuleType() RuleType { return RuleOverride }
func (OverrideValue) Validate() error    { return nil }

// PercentageValue rolls a feature out to a share of identifiers, 0 to 100.
type PercentageValue struct {
	Percentage float64 `json:"percentage"`
}

func (PercentageValue) RuleType() RuleType { return RulePercentage }

func (v PercentageValue) Validate() error {
	if v.Percentage < 0 || v.Percentage > 100 {
		return fmt.Errorf("%w: percentage %v outside 0..100", ErrInvalidRuleValue, v.Percentage)
	}
	return nil
}

// PlanGateValue lists the plans granted access.
type PlanGateValue struct {
	Plans []string `json:"plans"`
}

func (PlanGateValue) RuleType() RuleType { return RulePlanGate }
func (PlanGateValue) Validate() error    { return nil }

// Includes reports whether planID is one of the gated plans.
func (v PlanGateValue) Includes(planID string) bool {
	return planID != "" && slices.Contains(v.Plans, planID)
}

// DecodeRuleValue parses the JSON payload of a rule of type t. Required
// fields must be present; unknown fields are rejected.
func DecodeRuleValue(t RuleType, raw []byte) (RuleValue, error) {
	return decodeRuleValue(t, raw, true)
}

// DecodeStoredRuleValue is DecodeRuleValue for rows already persisted.
// Unknown fields are ignored so that extra keys written by other tools do
// not hide a rule.
func DecodeStoredRuleValue(t RuleType, raw []byte) (RuleValue, error) {
	return decodeRuleValue(t, raw, false)
}

func decodeRuleValue(t RuleType, raw []byte, strict bool) (RuleValue, error) {
	var v RuleValue
	switch t {
	case RuleOverride:
		var p struct {
			Enabled    *bool          `json:"enabled"`
			Conditions map[string]any `json:"conditions"`
		}
		if err := unmarshalRuleValue(raw, &p, strict); err != nil {
			return nil, err
		}
		if p.Enabled == nil {
			return nil, fmt.Errorf("%w: override requires enabled", ErrInvalidRuleValue)
		}
		v = OverrideValue{Enabled: *p.Enabled, Conditions: p.Conditions}

	case RulePercentage:
		var p struct {
			Percentage *float64 `json:"percentage"`
		}
		if err := unmarshalRuleValue(raw, &p, strict); err != nil {
			return nil, err
		}
		if p.Percentage == nil {
			return nil, fmt.Errorf("%w: percentage rule requires percentage", ErrInvalidRuleValue)
		}
		v = PercentageValue{Percentage: *p.Percentage}

	case RulePlanGate:
		var p struct {
			Plans *[]string `json:"plans"`
		}
		if err := unmarshalRuleValue(raw, &p, strict); err != nil {
			return nil, err
		}
		if p.Plans == nil {
			return nil, fmt.Errorf("%w: plan_gate requires plans", ErrInvalidRuleValue)
		}
		v = PlanGateValue{Plans: *p.Plans}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, t)
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateRule checks that the payload matches the declared type.
func ValidateRule(r Rule) error {
	if r.Value == nil {
		return fmt.Errorf("%w: rule %q has no value", ErrInvalidRuleValue, r.ID)
	}
	if r.Value.RuleType() != r.Type {
		return fmt.Errorf("%w: rule %q declares %s but carries %s", ErrInvalidRuleValue, r.ID, r.Type, r.Value.RuleType())
	}
	return r.Value.Validate()
}

func unmarshalRuleValue(raw []byte, v any, strict bool) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrInvalidRuleValue, err)
	}
	return nil
}

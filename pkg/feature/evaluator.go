package feature

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// step is one link of the decision chain. It returns ok=false to defer to
// the next step.
type step func(ctx context.Context, f *Feature, ec EvalContext) (res Result, ok bool, err error)

// Evaluator resolves feature keys to on/off decisions:
// missing, disabled, override rules, plan gating, percentage rollout,
// default value. The first step that decides wins.
type Evaluator struct {
	provider Provider
	steps    []step
}

func NewEvaluator(provider Provider) *Evaluator {
	e := &Evaluator{provider: provider}
	e.steps = []step{
		decideMissing,
		decideDisabled,
		decideOverride,
		e.decidePlan,
		decidePercentage,
		decideDefault,
	}
	return e
}

// EvaluateFeatures decides every key with a single provider round trip.
// Reasons are stripped unless ec.Debug is set.
func (e *Evaluator) EvaluateFeatures(ctx context.Context, keys []string, ec EvalContext) (map[string]Result, error) {
	out := make(map[string]Result, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	features, err := e.provider.FindFeaturesWithRules(ctx, ec.ProjectID, ec.EnvironmentID, keys)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}

	for _, key := range keys {
		if _, done := out[key]; done {
			continue
		}
		res, err := e.decide(ctx, features[key], ec)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", key, err)
		}
		if !ec.Debug {
			res.Reason = ""
		}
		out[key] = res
	}
	return out, nil
}

func (e *Evaluator) decide(ctx context.Context, f *Feature, ec EvalContext) (Result, error) {
	for _, s := range e.steps {
		res, ok, err := s(ctx, f, ec)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return res, nil
		}
	}
	// decideDefault always decides; reaching here means the chain is empty.
	return Result{Value: false, Reason: ReasonDefaultValue}, nil
}

func decideMissing(_ context.Context, f *Feature, _ EvalContext) (Result, bool, error) {
	if f == nil {
		return Result{Value: false, Reason: ReasonNotFound}, true, nil
	}
	return Result{}, false, nil
}

func decideDisabled(_ context.Context, f *Feature, _ EvalContext) (Result, bool, error) {
	if !f.Enabled {
		return Result{Value: false, Reason: ReasonDisabled}, true, nil
	}
	return Result{}, false, nil
}

func decideOverride(_ context.Context, f *Feature, ec EvalContext) (Result, bool, error) {
	for _, r := range rulesOf(f, RuleOverride) {
		v, ok := r.Value.(OverrideValue)
		if !ok {
			continue
		}
		if conditionsMatch(v.Conditions, ec.Attributes) {
			return Result{Value: v.Enabled, Reason: ReasonOverrideRule}, true, nil
		}
	}
	return Result{}, false, nil
}

func (e *Evaluator) decidePlan(ctx context.Context, f *Feature, ec EvalContext) (Result, bool, error) {
	if f.Type != TypePlan {
		return Result{}, false, nil
	}

	if gates := rulesOf(f, RulePlanGate); len(gates) > 0 {
		for _, r := range gates {
			if v, ok := r.Value.(PlanGateValue); ok && v.Includes(ec.PlanID) {
				return Result{Value: true, Reason: ReasonPlanAccess}, true, nil
			}
		}
		return Result{Value: false, Reason: ReasonPlanNotIncluded}, true, nil
	}

	if ec.PlanID == "" {
		return Result{}, false, nil
	}

	in, err := e.provider.IsFeatureInPlan(ctx, f.ID, ec.PlanID)
	if err != nil {
		return Result{}, false, fmt.Errorf("plan entitlement: %w", err)
	}
	if in {
		return Result{Value: true, Reason: ReasonPlanAccess}, true, nil
	}
	return Result{Value: false, Reason: ReasonPlanNotIncluded}, true, nil
}

func decidePercentage(_ context.Context, f *Feature, ec EvalContext) (Result, bool, error) {
	if f.Type != TypePercentage {
		return Result{}, false, nil
	}

	rules := rulesOf(f, RulePercentage)
	if len(rules) == 0 {
		return Result{}, false, nil
	}
	v, ok := rules[0].Value.(PercentageValue)
	if !ok {
		return Result{}, false, nil
	}

	if InRollout(f.Key, rolloutIdentifier(ec), v.Percentage) {
		return Result{Value: true, Reason: ReasonPercentageIncluded}, true, nil
	}
	return Result{Value: false, Reason: ReasonPercentageExcluded}, true, nil
}

func decideDefault(_ context.Context, f *Feature, _ EvalContext) (Result, bool, error) {
	return Result{Value: f.DefaultValue, Reason: ReasonDefaultValue}, true, nil
}

// rulesOf returns the enabled rules of type t, highest priority first.
func rulesOf(f *Feature, t RuleType) []Rule {
	var out []Rule
	for _, r := range f.Rules {
		if r.Type == t && r.Enabled {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b Rule) int { return cmp.Compare(b.Priority, a.Priority) })
	return out
}

package feature

import "context"

// Type selects which rollout step applies to a feature.
type Type string

const (
	TypeBoolean    Type = "boolean"
	TypePercentage Type = "percentage"
	TypePlan       Type = "plan"
)

// Feature is a togglable capability as seen by one environment: the
// project-level definition plus the enabled rules of that environment.
type Feature struct {
	ID           string
	ProjectID    string
	Key          string
	Name         string
	Type         Type
	DefaultValue bool
	// Enabled is the kill switch; a disabled feature ignores every rule.
	Enabled  bool
	Metadata map[string]any
	Rules    []Rule
}

// Entitlement grants (or explicitly denies) a plan access to a feature.
type Entitlement struct {
	PlanID    string
	FeatureID string
	Enabled   bool
}

// Provider loads features for evaluation.
type Provider interface {
	// FindFeaturesWithRules returns the features of projectID whose keys are
	// listed, each carrying only the enabled rules of environmentID. Unknown
	// keys are absent from the map.
	FindFeaturesWithRules(ctx context.Context, projectID, environmentID string, keys []string) (map[string]*Feature, error)

	// IsFeatureInPlan reports whether planID has an enabled entitlement to
	// featureID.
	IsFeatureInPlan(ctx context.Context, featureID, planID string) (bool, error)
}

// EvalContext is everything an evaluation may depend on besides the feature
// itself. Attributes is the caller-supplied request context matched by
// override conditions; its "userId" entry is the rollout identifier.
type EvalContext struct {
	ProjectID     string
	EnvironmentID string
	OrgID         string
	PlanID        string
	Attributes    map[string]any
	Debug         bool
}

// Reason explains a Result. It is only reported in debug mode.
type Reason string

const (
	ReasonNotFound           Reason = "feature_not_found"
	ReasonDisabled           Reason = "feature_disabled"
	ReasonOverrideRule       Reason = "override_rule"
	ReasonPlanAccess         Reason = "plan_access"
	ReasonPlanNotIncluded    Reason = "plan_not_included"
	ReasonPercentageIncluded Reason = "percentage_included"
	ReasonPercentageExcluded Reason = "percentage_excluded"
	ReasonDefaultValue       Reason = "default_value"
)

// Result is the outcome for one feature key.
type Result struct {
	Value  bool   `json:"value"`
	Reason Reason `json:"reason,omitempty"`
}

package feature

import "errors"

var (
	// ErrInvalidFeature indicates a feature definition missing required fields.
	ErrInvalidFeature = errors.New("invalid feature definition")

	// ErrInvalidRuleValue indicates a rule payload that does not match its type.
	ErrInvalidRuleValue = errors.New("invalid feature rule value")

	// ErrUnknownRuleType indicates a rule type outside override, percentage and plan_gate.
	ErrUnknownRuleType = errors.New("unknown feature rule type")

	// ErrDuplicateRule indicates two rules of the same type for one feature and environment.
	ErrDuplicateRule = errors.New("duplicate feature rule")
)

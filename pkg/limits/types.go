package limits

import (
	"errors"
	"fmt"
)

// Unlimited is reported as Limit and Remaining when no limit applies.
const Unlimited int64 = -1

// LimitType describes what a limit counts. It is informational; every type
// is enforced the same way.
type LimitType string

const (
	LimitCount        LimitType = "count"
	LimitStorageBytes LimitType = "storage_bytes"
	LimitSeats        LimitType = "seats"
	LimitCustom       LimitType = "custom"
)

// PeriodType is the declared reset cadence of a limit. Counters are bucketed
// by UTC calendar month regardless of this value.
type PeriodType string

const (
	PeriodMinute        PeriodType = "minute"
	PeriodHour          PeriodType = "hour"
	PeriodDay           PeriodType = "day"
	PeriodMonth         PeriodType = "month"
	PeriodBillingPeriod PeriodType = "billing_period"
)

// Enforcement decides whether exceeding a limit denies the request.
type Enforcement string

const (
	EnforcementHard Enforcement = "hard"
	EnforcementSoft Enforcement = "soft"
)

// UsageLimit caps one metric in an environment. An empty PlanID is the
// environment default; a plan-specific limit wins over it.
type UsageLimit struct {
	ID            string      `json:"id,omitempty" yaml:"id"`
	EnvironmentID string      `json:"environmentId" yaml:"environment"`
	PlanID        string      `json:"planId,omitempty" yaml:"plan"`
	MetricKey     string      `json:"metricKey" yaml:"metric"`
	LimitType     LimitType   `json:"limitType" yaml:"type"`
	LimitValue    int64       `json:"limitValue" yaml:"value"`
	PeriodType    PeriodType  `json:"periodType" yaml:"period"`
	Enforcement   Enforcement `json:"enforcement" yaml:"enforcement"`
	// WarningThreshold is a percentage (0 to 100) kept for consumers; the
	// evaluator does not act on it.
	WarningThreshold *int `json:"warningThreshold,omitempty" yaml:"warning_threshold"`
}

// Validate checks the enumerations and ranges of l.
func (l UsageLimit) Validate() error {
	var errs []error
	if l.EnvironmentID == "" || l.MetricKey == "" {
		errs = append(errs, errors.New("environment and metric are required"))
	}
	switch l.LimitType {
	case LimitCount, LimitStorageBytes, LimitSeats, LimitCustom:
	default:
		errs = append(errs, fmt.Errorf("unknown limit type %q", l.LimitType))
	}
	switch l.PeriodType {
	case PeriodMinute, PeriodHour, PeriodDay, PeriodMonth, PeriodBillingPeriod:
	default:
		errs = append(errs, fmt.Errorf("unknown period type %q", l.PeriodType))
	}
	switch l.Enforcement {
	case EnforcementHard, EnforcementSoft:
	default:
		errs = append(errs, fmt.Errorf("unknown enforcement %q", l.Enforcement))
	}
	if l.LimitValue < 0 {
		errs = append(errs, fmt.Errorf("negative limit value %d", l.LimitValue))
	}
	if w := l.WarningThreshold; w != nil && (*w < 0 || *w > 100) {
		errs = append(errs, fmt.Errorf("warning threshold %d outside 0..100", *w))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidLimit}, errs...)...)
	}
	return nil
}

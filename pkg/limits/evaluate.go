package limits

// Reason explains a Result. It is only reported in debug mode.
type Reason string

const (
	ReasonNoLimitDefined    Reason = "no_limit_defined"
	ReasonWithinSoftLimit   Reason = "within_soft_limit"
	ReasonSoftLimitExceeded Reason = "soft_limit_exceeded"
	ReasonWithinHardLimit   Reason = "within_hard_limit"
	ReasonHardLimitExceeded Reason = "hard_limit_exceeded"
)

// Result is the outcome for one metric. Limit and Remaining are Unlimited
// when no limit applies.
type Result struct {
	Allowed   bool   `json:"allowed"`
	Current   int64  `json:"current"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Reason    Reason `json:"reason,omitempty"`
}

// Evaluate decides a metric given its effective limit (nil when none) and
// current usage. Soft limits always allow; hard limits allow while current
// stays below the limit.
func Evaluate(limit *UsageLimit, current int64) Result {
	if limit == nil {
		return Result{Allowed: true, Current: current, Limit: Unlimited, Remaining: Unlimited, Reason: ReasonNoLimitDefined}
	}

	res := Result{
		Current:   current,
		Limit:     limit.LimitValue,
		Remaining: max(0, limit.LimitValue-current),
	}
	within := current < limit.LimitValue

	if limit.Enforcement == EnforcementSoft {
		res.Allowed = true
		res.Reason = ReasonSoftLimitExceeded
		if within {
			res.Reason = ReasonWithinSoftLimit
		}
		return res
	}

	res.Allowed = within
	res.Reason = ReasonHardLimitExceeded
	if within {
		res.Reason = ReasonWithinHardLimit
	}
	return res
}

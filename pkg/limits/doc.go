// Package limits evaluates usage metrics against per-environment limits.
//
// A UsageLimit caps one metric in one environment, either as the environment
// default or for a specific plan; the plan-specific limit wins when the
// caller's plan has one. Hard limits deny once current usage reaches the
// limit, soft limits always allow and only report the overrun.
//
// Basic usage:
//
//	src, _ := limits.NewMemorySource(limits.UsageLimit{
//	    EnvironmentID: "prod",
//	    MetricKey:     "api_calls",
//	    LimitType:     limits.LimitCount,
//	    LimitValue:    1000,
//	    PeriodType:    limits.PeriodMonth,
//	    Enforcement:   limits.EnforcementHard,
//	})
//	ev := limits.NewEvaluator(src, usageStore)
//	res, err := ev.EvaluateLimits(ctx, []string{"api_calls"}, limits.EvalContext{
//	    EnvironmentID: "prod",
//	    OrgID:         "org_1",
//	})
//
// Current usage is read from the counter whose monthly period contains the
// evaluation time. PgSource reads limits from Postgres; MemorySource serves
// tests and fixture-driven local runs.
package limits

// Package feature evaluates feature flags for one environment.
//
// Each requested key runs through an ordered decision chain, stopping at
// the first step that decides:
//
//  1. unknown key: false (feature_not_found)
//  2. kill switch off: false (feature_disabled)
//  3. override rules by descending priority whose conditions all equal the
//     request attributes (override_rule)
//  4. plan features: plan_gate rules, or the plan entitlement table when no
//     gate exists (plan_access, plan_not_included)
//  5. percentage features: SHA-256 bucketing of "key:identifier"
//     (percentage_included, percentage_excluded)
//  6. the feature's default value (default_value)
//
// Rule payloads are typed (OverrideValue, PercentageValue, PlanGateValue)
// and validated by the providers when loaded, never inside the chain.
package feature

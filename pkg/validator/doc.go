// Package validator provides small composable validation rules.
//
// Rules are built eagerly and checked by Apply, which collects every failure
// instead of stopping at the first one:
//
//	err := validator.Apply(
//		validator.RequiredSlice("events", events),
//		validator.MaxLenSlice("events", events, 1000),
//		validator.RequiredString("events[0].metric", metric),
//	)
//
// The returned error is a ValidationErrors value. The HTTP layer recovers it
// with ExtractValidationErrors and renders it as per-field details.
package validator

// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a request struct already filled by binders and
// returns a Response. Wrap turns it into an http.HandlerFunc:
//
//	r.Post("/v1/evaluate", handler.Wrap(evaluate,
//		handler.WithBinders[handler.Context, evaluation.Request](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, evaluation.Request](handler.NewErrorHandler(log)),
//	))
//
// Errors are rendered as {"error":{"code","message","details"}}. ErrorStatus
// maps validator.ValidationErrors to 400 with per-field details, HTTPError to
// its own status and binder failures to 400/413/415; anything else is a 500
// whose cause is logged but never sent to the client.
package handler

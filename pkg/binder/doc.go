// Package binder fills request structs from HTTP requests.
//
// Each binder is a func(*http.Request, any) error so several can be chained
// through handler.WithBinders: JSON decodes a strict, size-limited JSON
// body; Query and Path read `query:"..."` and `path:"..."` tagged fields.
//
// Failures wrap one of the package errors (ErrFailedToParseJSON,
// ErrUnsupportedMediaType, ...) which the HTTP layer maps to 400 responses.
package binder

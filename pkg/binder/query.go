package binder

import "net/http"

// Query binds URL query parameters into fields tagged `query:"name"`.
// Untagged fields bind by their lowercased name; `query:"-"` skips a field.
// Slices accept repeated or comma-separated values and pointers mark
// optional parameters.
//
//	type ingestParams struct {
//		Summary bool `query:"summary"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}

package binder

import "net/http"

// Path binds route parameters into fields tagged `path:"name"` using the
// router's extractor, for example chi.URLParam.
//
//	r.Post("/dead-letters/{id}/replay", handler.Wrap(replay,
//		handler.WithBinders[handler.Context, replayRequest](binder.Path(chi.URLParam)),
//	))
func Path(extractor func(r *http.Request, key string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return ErrFailedToParsePath
		}
		return bindFields(v, "path", func(name string) []string {
			if value := extractor(r, name); value != "" {
				return []string{value}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}

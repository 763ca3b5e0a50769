package tenant

import (
	"net/http"
)

// ErrorHandler writes the response for a request whose scope could not be
// resolved.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware resolves the scope of every request and stores it in the
// request context. Requests that cannot be resolved are answered by onError
// and never reach next.
func Middleware(resolver Resolver, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := resolver.Resolve(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), s)))
		})
	}
}

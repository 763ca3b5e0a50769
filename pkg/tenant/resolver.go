package tenant

import (
	"net/http"
	"strings"
)

// Resolver derives the request scope. Real deployments resolve it from an
// API key; HeaderResolver is the local-development default.
type Resolver interface {
	Resolve(r *http.Request) (Scope, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (Scope, error)

func (f ResolverFunc) Resolve(r *http.Request) (Scope, error) {
	return f(r)
}

// Header names read by HeaderResolver.
const (
	HeaderProjectID     = "X-Project-ID"
	HeaderEnvironmentID = "X-Environment-ID"
	HeaderOrgID         = "X-Org-ID"
	HeaderPlanID        = "X-Plan-ID"
)

// HeaderResolver reads the scope from X-Project-ID, X-Environment-ID,
// X-Org-ID and the optional X-Plan-ID headers.
type HeaderResolver struct{}

func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{}
}

func (HeaderResolver) Resolve(r *http.Request) (Scope, error) {
	s := Scope{
		ProjectID:     strings.TrimSpace(r.Header.Get(HeaderProjectID)),
		EnvironmentID: strings.TrimSpace(r.Header.Get(HeaderEnvironmentID)),
		OrgID:         strings.TrimSpace(r.Header.Get(HeaderOrgID)),
		PlanID:        strings.TrimSpace(r.Header.Get(HeaderPlanID)),
	}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

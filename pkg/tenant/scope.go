package tenant

import (
	"context"
	"log/slog"
)

// Scope identifies whose data a request touches. ProjectID scopes feature
// keys; EnvironmentID scopes rules, limits, counters and idempotency keys;
// OrgID is the caller's customer; PlanID is optional and drives plan gating
// and plan-specific limits.
type Scope struct {
	ProjectID     string `json:"projectId"`
	EnvironmentID string `json:"environmentId"`
	OrgID         string `json:"orgId"`
	PlanID        string `json:"planId,omitempty"`
}

// Validate reports ErrIncompleteScope when a required identifier is empty.
func (s Scope) Validate() error {
	if s.ProjectID == "" || s.EnvironmentID == "" || s.OrgID == "" {
		return ErrIncompleteScope
	}
	return nil
}

type contextKey struct{}

// WithScope stores s in ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the scope placed by Middleware.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	return s, ok
}

// LoggerExtractor attaches the request scope to log records.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		s, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Group("scope",
			slog.String("project_id", s.ProjectID),
			slog.String("environment_id", s.EnvironmentID),
			slog.String("org_id", s.OrgID),
		), true
	}
}

package tenant

import "errors"

var (
	// ErrIncompleteScope is returned when project, environment or org is missing.
	ErrIncompleteScope = errors.New("request scope requires project, environment and org identifiers")

	// ErrNoScopeInContext is returned when a handler runs without Middleware.
	ErrNoScopeInContext = errors.New("no scope in context")
)

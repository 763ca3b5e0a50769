package limits

import "errors"

// Domain errors for limits operations
var (
	ErrInvalidLimit   = errors.New("limits.errors.invalid_limit")
	ErrDuplicateLimit = errors.New("limits.errors.duplicate_limit")

	ErrFailedToLoadLimits = errors.New("limits.errors.failed_to_load_limits")
	ErrFailedToLoadUsage  = errors.New("limits.errors.failed_to_load_usage")
)

package usage

import "errors"

var (
	// ErrInvalidBatch indicates a request that failed shape validation.
	ErrInvalidBatch = errors.New("invalid usage batch")

	// ErrPartialFailure indicates a job in which some events could not be
	// recorded; the job is retried.
	ErrPartialFailure = errors.New("usage events failed to apply")

	// ErrEnqueueFailed indicates the ingestion job could not be queued.
	ErrEnqueueFailed = errors.New("failed to enqueue usage batch")
)

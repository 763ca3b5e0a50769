package idempotency

import "errors"

// ErrBackend wraps failures of the underlying store.
var ErrBackend = errors.New("idempotency backend error")

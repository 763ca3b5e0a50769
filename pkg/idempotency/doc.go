// Package idempotency provides at-most-once claims on (scope, key) pairs
// with a 24 hour expiry.
//
// A claim is a single atomic "set if absent" on the backend, stored under
// idempotency:{scope}:{key}. RedisBackend is used in production and
// MemoryBackend for tests and Redis-less deployments. When the backend
// errors, Service fails open and reports the key as new: availability wins
// over exactly-once.
package idempotency

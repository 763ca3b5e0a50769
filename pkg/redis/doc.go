// Package redis connects to Redis with github.com/redis/go-redis/v9 and
// exposes a readiness probe. Redis is optional for flagship: without it the
// idempotency claims live in process memory.
package redis

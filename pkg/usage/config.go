package usage

import "time"

// Config tunes asynchronous ingestion.
type Config struct {
	IdempotencyTTL time.Duration `env:"USAGE_IDEMPOTENCY_TTL" envDefault:"24h"`
	JobAttempts    int           `env:"USAGE_JOB_ATTEMPTS" envDefault:"3"`
	JobBackoff     time.Duration `env:"USAGE_JOB_BACKOFF" envDefault:"1s"`
}

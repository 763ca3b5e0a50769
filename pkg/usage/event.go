package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/flagship/pkg/validator"
)

// Batch and field bounds of an ingestion request.
const (
	MaxBatchSize         = 1000
	MaxMetricLength      = 100
	MaxIdempotencyKeyLen = 255
)

// Event is one usage increment. Delta may be negative. A missing Timestamp
// means "now"; an IdempotencyKey makes the event apply at most once per
// environment within the idempotency window.
type Event struct {
	Metric         string         `json:"metric"`
	Delta          int64          `json:"delta"`
	Timestamp      *time.Time     `json:"timestamp,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ValidateEvents checks the shape of a whole request. Any violation rejects
// the batch before a single event is applied; the returned error wraps
// ErrInvalidBatch and validator.ValidationErrors.
func ValidateEvents(events []Event) error {
	rules := []validator.Rule{
		validator.RequiredSlice("events", events),
		validator.MaxLenSlice("events", events, MaxBatchSize),
	}
	for i, ev := range events {
		field := fmt.Sprintf("events[%d]", i)
		rules = append(rules,
			validator.RequiredString(field+".metric", ev.Metric),
			validator.MaxLenString(field+".metric", ev.Metric, MaxMetricLength),
			validator.MaxLenString(field+".idempotencyKey", ev.IdempotencyKey, MaxIdempotencyKeyLen),
		)
	}

	if err := validator.Apply(rules...); err != nil {
		return errors.Join(ErrInvalidBatch, err)
	}
	return nil
}

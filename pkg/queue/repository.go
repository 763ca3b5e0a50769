package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically claims the next due task, counting the attempt
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks task as completed and prunes old completed tasks
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask records the error and either reschedules the task with
	// backoff or marks it failed when no attempts remain
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// MoveToDLQ moves task to dead letter queue
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
}

// LockRecoverer releases tasks whose lock expired, typically because the
// worker holding them died. Exhausted tasks go to the dead letter queue.
type LockRecoverer interface {
	RecoverExpiredLocks(ctx context.Context) (int, error)
}

// DeadLetterFilter narrows ListDLQ. Empty fields match everything.
type DeadLetterFilter struct {
	Queue     string
	Partition string
	Limit     int
}

// DeadLetterRepository exposes the dead letter queue for inspection and
// manual replay.
type DeadLetterRepository interface {
	// ListDLQ returns the newest dead letters matching filter first.
	ListDLQ(ctx context.Context, filter DeadLetterFilter) ([]DeadLetter, error)

	// RequeueFromDLQ re-creates the task with a fresh attempt budget and
	// removes the dead letter. A non-empty partition must match the dead
	// letter's, otherwise ErrDeadLetterNotFound is returned.
	RequeueFromDLQ(ctx context.Context, id uuid.UUID, partition string) (*Task, error)
}

// Storage is everything a queue backend provides.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	LockRecoverer
	DeadLetterRepository
}

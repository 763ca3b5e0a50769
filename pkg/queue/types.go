package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// Retry policy defaults.
const (
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = time.Second
	DefaultBackoffJitter = 200 * time.Millisecond

	// DefaultCompletedRetention is how many completed tasks are kept per queue.
	DefaultCompletedRetention = 100
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority represents task priority (0-100, higher is more important)
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task represents a task in the queue.
//
// Partition is an opaque owner key, usually a tenant. Dead letters keep it
// so they can be listed and replayed per owner.
//
// Attempts counts claims, so it already includes the run in progress while
// the task is processing. BackoffBase is fixed when the task is enqueued
// and already carries its jitter.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	TaskName    string          `json:"taskName"`
	Partition   string          `json:"partition,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      TaskStatus      `json:"status"`
	Priority    Priority        `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	BackoffBase time.Duration   `json:"backoffBase"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	LockedUntil *time.Time      `json:"lockedUntil,omitempty"`
	LockedBy    *uuid.UUID      `json:"lockedBy,omitempty"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Exhausted reports whether no attempts remain.
func (t *Task) Exhausted() bool {
	return t.Attempts >= t.MaxAttempts
}

// DeadLetter is a task that used up its attempts. Dead letters are kept
// until they are replayed.
type DeadLetter struct {
	ID          uuid.UUID       `json:"id"`
	TaskID      uuid.UUID       `json:"taskId"`
	Queue       string          `json:"queue"`
	TaskName    string          `json:"taskName"`
	Partition   string          `json:"partition,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    Priority        `json:"priority"`
	Error       string          `json:"error"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	BackoffBase time.Duration   `json:"-"`
	FailedAt    time.Time       `json:"failedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// RetryDelay is the wait before the attempt following attempt n:
// base * 2^(n-1).
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// requeue builds a fresh pending task from a dead letter, keeping its
// retry policy and resetting the attempt budget.
func (d *DeadLetter) requeue(now time.Time) *Task {
	return &Task{
		ID:          uuid.New(),
		Queue:       d.Queue,
		TaskName:    d.TaskName,
		Partition:   d.Partition,
		Payload:     d.Payload,
		Status:      TaskStatusPending,
		Priority:    d.Priority,
		MaxAttempts: d.MaxAttempts,
		BackoffBase: d.BackoffBase,
		ScheduledAt: now,
		CreatedAt:   now,
	}
}

func deadLetterOf(task *Task, now time.Time) *DeadLetter {
	d := &DeadLetter{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Queue:       task.Queue,
		TaskName:    task.TaskName,
		Partition:   task.Partition,
		Payload:     task.Payload,
		Priority:    task.Priority,
		Attempts:    task.Attempts,
		MaxAttempts: task.MaxAttempts,
		BackoffBase: task.BackoffBase,
		FailedAt:    now,
		CreatedAt:   now,
	}
	if task.Error != nil {
		d.Error = *task.Error
	}
	return d
}

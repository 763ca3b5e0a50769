package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/flagship/pkg/pg"
)

// PgDB is the Postgres surface PgStorage needs; *pgxpool.Pool satisfies it.
type PgDB interface {
	pg.DBTX
	pg.TxBeginner
}

// PgStorage implements Storage on the queue_tasks and queue_tasks_dlq
// tables. Claims use FOR UPDATE SKIP LOCKED so concurrent workers never
// receive the same task.
type PgStorage struct {
	db        PgDB
	retention int
}

func NewPgStorage(db PgDB, completedRetention int) *PgStorage {
	if completedRetention < 0 {
		completedRetention = DefaultCompletedRetention
	}
	return &PgStorage{db: db, retention: completedRetention}
}

const taskColumns = `id, queue, task_name, partition_key, payload, status, priority, attempts, max_attempts,
	backoff_base_ms, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t         Task
		priority  int16
		backoffMs int64
	)
	err := row.Scan(&t.ID, &t.Queue, &t.TaskName, &t.Partition, &t.Payload, &t.Status, &priority, &t.Attempts,
		&t.MaxAttempts, &backoffMs, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt,
		&t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.BackoffBase = time.Duration(backoffMs) * time.Millisecond
	return &t, nil
}

const createTaskSQL = `
INSERT INTO queue_tasks (` + taskColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

func (s *PgStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	return s.createTask(ctx, s.db, task)
}

func (s *PgStorage) createTask(ctx context.Context, db pg.DBTX, task *Task) error {
	_, err := db.Exec(ctx, createTaskSQL,
		task.ID, task.Queue, task.TaskName, task.Partition, task.Payload, task.Status, int16(task.Priority),
		task.Attempts, task.MaxAttempts, task.BackoffBase.Milliseconds(), task.ScheduledAt,
		task.LockedUntil, task.LockedBy, task.ProcessedAt, task.Error, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

const claimTaskSQL = `
UPDATE queue_tasks
SET status = 'processing', attempts = attempts + 1, locked_until = $3, locked_by = $2
WHERE id = (
	SELECT id FROM queue_tasks
	WHERE queue = ANY($1) AND status = 'pending' AND scheduled_at <= $4
	ORDER BY priority DESC, scheduled_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskColumns

func (s *PgStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := time.Now()
	task, err := scanTask(s.db.QueryRow(ctx, claimTaskSQL, queues, workerID, now.Add(lockDuration), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

const (
	completeTaskSQL = `
UPDATE queue_tasks
SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL, error = NULL
WHERE id = $1 AND status = 'processing'
RETURNING queue`

	pruneCompletedSQL = `
DELETE FROM queue_tasks
WHERE id IN (
	SELECT id FROM queue_tasks
	WHERE queue = $1 AND status = 'completed'
	ORDER BY processed_at DESC
	OFFSET $2
)`
)

func (s *PgStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var queue string
		err := tx.QueryRow(ctx, completeTaskSQL, taskID, time.Now()).Scan(&queue)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s is not processing", ErrTaskNotFound, taskID)
		}
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		if _, err := tx.Exec(ctx, pruneCompletedSQL, queue, s.retention); err != nil {
			return fmt.Errorf("prune completed tasks: %w", err)
		}
		return nil
	})
}

const (
	lockProcessingSQL = `
SELECT attempts, max_attempts, backoff_base_ms
FROM queue_tasks
WHERE id = $1 AND status = 'processing'
FOR UPDATE`

	failTaskSQL = `
UPDATE queue_tasks
SET status = $2, scheduled_at = COALESCE($3, scheduled_at), error = $4, locked_until = NULL, locked_by = NULL
WHERE id = $1`
)

func (s *PgStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var t Task
		var backoffMs int64
		err := tx.QueryRow(ctx, lockProcessingSQL, taskID).Scan(&t.Attempts, &t.MaxAttempts, &backoffMs)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s is not processing", ErrTaskNotFound, taskID)
		}
		if err != nil {
			return fmt.Errorf("lock task: %w", err)
		}

		status := TaskStatusFailed
		var retryAt *time.Time
		if !t.Exhausted() {
			status = TaskStatusPending
			at := time.Now().Add(RetryDelay(time.Duration(backoffMs)*time.Millisecond, t.Attempts))
			retryAt = &at
		}

		if _, err := tx.Exec(ctx, failTaskSQL, taskID, status, retryAt, errorMsg); err != nil {
			return fmt.Errorf("fail task: %w", err)
		}
		return nil
	})
}

const moveToDLQSQL = `
WITH moved AS (
	DELETE FROM queue_tasks WHERE id = $1
	RETURNING id, queue, task_name, partition_key, payload, priority, COALESCE(error, '') AS error,
		attempts, max_attempts, backoff_base_ms
)
INSERT INTO queue_tasks_dlq (id, task_id, queue, task_name, partition_key, payload, priority, error,
	attempts, max_attempts, backoff_base_ms, failed_at, created_at)
SELECT $2, id, queue, task_name, partition_key, payload, priority, error, attempts, max_attempts, backoff_base_ms, $3, $3
FROM moved`

func (s *PgStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, moveToDLQSQL, taskID, uuid.New(), time.Now())
	if err != nil {
		return fmt.Errorf("move task to dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

const (
	deadLetterExpiredSQL = `
WITH moved AS (
	DELETE FROM queue_tasks
	WHERE status = 'processing' AND locked_until < $1 AND attempts >= max_attempts
	RETURNING id, queue, task_name, partition_key, payload, priority, attempts, max_attempts, backoff_base_ms
)
INSERT INTO queue_tasks_dlq (id, task_id, queue, task_name, partition_key, payload, priority, error,
	attempts, max_attempts, backoff_base_ms, failed_at, created_at)
SELECT gen_random_uuid(), id, queue, task_name, partition_key, payload, priority, 'lock expired after final attempt',
	attempts, max_attempts, backoff_base_ms, $1, $1
FROM moved`

	releaseExpiredSQL = `
UPDATE queue_tasks SET status = 'pending', locked_until = NULL, locked_by = NULL
WHERE status = 'processing' AND locked_until < $1`
)

func (s *PgStorage) RecoverExpiredLocks(ctx context.Context) (int, error) {
	var recovered int64
	err := pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		now := time.Now()
		tag, err := tx.Exec(ctx, deadLetterExpiredSQL, now)
		if err != nil {
			return fmt.Errorf("dead-letter expired tasks: %w", err)
		}
		recovered += tag.RowsAffected()

		tag, err = tx.Exec(ctx, releaseExpiredSQL, now)
		if err != nil {
			return fmt.Errorf("release expired locks: %w", err)
		}
		recovered += tag.RowsAffected()
		return nil
	})
	return int(recovered), err
}

const dlqColumns = `id, task_id, queue, task_name, partition_key, payload, priority, error, attempts, max_attempts,
	backoff_base_ms, failed_at, created_at`

func scanDeadLetter(row pgx.Row) (DeadLetter, error) {
	var (
		d         DeadLetter
		priority  int16
		backoffMs int64
	)
	err := row.Scan(&d.ID, &d.TaskID, &d.Queue, &d.TaskName, &d.Partition, &d.Payload, &priority, &d.Error,
		&d.Attempts, &d.MaxAttempts, &backoffMs, &d.FailedAt, &d.CreatedAt)
	d.Priority = Priority(priority)
	d.BackoffBase = time.Duration(backoffMs) * time.Millisecond
	return d, err
}

const listDLQSQL = `
SELECT ` + dlqColumns + `
FROM queue_tasks_dlq
WHERE ($1 = '' OR queue = $1) AND ($2 = '' OR partition_key = $2)
ORDER BY failed_at DESC
LIMIT $3`

func (s *PgStorage) ListDLQ(ctx context.Context, filter DeadLetterFilter) ([]DeadLetter, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, listDLQSQL, filter.Queue, filter.Partition, limit)
	if err != nil {
		return nil, fmt.Errorf("query dlq: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadLetter, error) {
		return scanDeadLetter(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan dlq: %w", err)
	}
	return out, nil
}

const takeDeadLetterSQL = `
DELETE FROM queue_tasks_dlq
WHERE id = $1 AND ($2 = '' OR partition_key = $2)
RETURNING ` + dlqColumns

func (s *PgStorage) RequeueFromDLQ(ctx context.Context, id uuid.UUID, partition string) (*Task, error) {
	var task *Task
	err := pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		d, err := scanDeadLetter(tx.QueryRow(ctx, takeDeadLetterSQL, id, partition))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrDeadLetterNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("take dead letter: %w", err)
		}

		task = d.requeue(time.Now())
		return s.createTask(ctx, tx, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage for tests and local development
type MemoryStorage struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*Task
	dlq       map[uuid.UUID]*DeadLetter
	retention int

	// Indexes for efficient queries
	byQueue  map[string][]uuid.UUID
	byStatus map[TaskStatus][]uuid.UUID

	// Lock management
	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MemoryStorageOption configures a MemoryStorage
type MemoryStorageOption func(*MemoryStorage)

// WithCompletedRetention sets how many completed tasks are kept per queue
func WithCompletedRetention(n int) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if n >= 0 {
			ms.retention = n
		}
	}
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks:     make(map[uuid.UUID]*Task),
		dlq:       make(map[uuid.UUID]*DeadLetter),
		retention: DefaultCompletedRetention,
		byQueue:   make(map[string][]uuid.UUID),
		byStatus:  make(map[TaskStatus][]uuid.UUID),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateTask implements EnqueuerRepository
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	ms.insert(task)
	return nil
}

func (ms *MemoryStorage) insert(task *Task) {
	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	ms.byQueue[task.Queue] = append(ms.byQueue[task.Queue], task.ID)
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)
}

// Task returns a copy of the task, for inspection
func (ms *MemoryStorage) Task(taskID uuid.UUID) (*Task, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, false
	}
	taskCopy := *task
	return &taskCopy, true
}

// ClaimTask implements WorkerRepository. Highest priority wins, the
// earliest scheduled task breaks ties.
func (ms *MemoryStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var bestTask *Task

	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]

		if !slices.Contains(queues, task.Queue) {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}

		if bestTask == nil ||
			task.Priority > bestTask.Priority ||
			(task.Priority == bestTask.Priority && task.ScheduledAt.Before(bestTask.ScheduledAt)) {
			bestTask = task
		}
	}

	if bestTask == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	bestTask.Status = TaskStatusProcessing
	bestTask.Attempts++
	bestTask.LockedUntil = &lockUntil
	bestTask.LockedBy = &workerID

	ms.moveStatus(bestTask.ID, TaskStatusPending, TaskStatusProcessing)

	taskCopy := *bestTask
	return &taskCopy, nil
}

// CompleteTask implements WorkerRepository
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	task.Error = nil

	ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusCompleted)
	ms.pruneCompleted(task.Queue)

	return nil
}

// FailTask implements WorkerRepository
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.Exhausted() {
		task.Status = TaskStatusFailed
		ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusFailed)
		return nil
	}

	task.Status = TaskStatusPending
	task.ScheduledAt = time.Now().Add(RetryDelay(task.BackoffBase, task.Attempts))
	ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusPending)

	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	ms.deadLetter(task, time.Now())
	return nil
}

func (ms *MemoryStorage) deadLetter(task *Task, now time.Time) {
	d := deadLetterOf(task, now)
	ms.dlq[d.ID] = d
	ms.remove(task)
}

// ListDLQ implements DeadLetterRepository
func (ms *MemoryStorage) ListDLQ(ctx context.Context, filter DeadLetterFilter) ([]DeadLetter, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]DeadLetter, 0, len(ms.dlq))
	for _, d := range ms.dlq {
		if filter.Queue != "" && d.Queue != filter.Queue {
			continue
		}
		if filter.Partition != "" && d.Partition != filter.Partition {
			continue
		}
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b DeadLetter) int { return b.FailedAt.Compare(a.FailedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// RequeueFromDLQ implements DeadLetterRepository
func (ms *MemoryStorage) RequeueFromDLQ(ctx context.Context, id uuid.UUID, partition string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	d, ok := ms.dlq[id]
	if !ok || (partition != "" && d.Partition != partition) {
		return nil, fmt.Errorf("%w: %s", ErrDeadLetterNotFound, id)
	}

	task := d.requeue(time.Now())
	ms.insert(task)
	delete(ms.dlq, id)

	taskCopy := *task
	return &taskCopy, nil
}

// RecoverExpiredLocks implements LockRecoverer. It also runs every second
// in the background until Close.
func (ms *MemoryStorage) RecoverExpiredLocks(ctx context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	recovered := 0
	for _, taskID := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
		task := ms.tasks[taskID]
		if task.LockedUntil == nil || !task.LockedUntil.Before(now) {
			continue
		}
		recovered++

		if task.Exhausted() {
			msg := "lock expired after final attempt"
			task.Error = &msg
			ms.deadLetter(task, now)
			continue
		}

		task.Status = TaskStatusPending
		task.LockedUntil = nil
		task.LockedBy = nil
		ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusPending)
	}
	return recovered, nil
}

// Helper methods

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists || task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s is not processing", ErrTaskNotFound, taskID)
	}
	return task, nil
}

func (ms *MemoryStorage) moveStatus(taskID uuid.UUID, from, to TaskStatus) {
	ms.removeFromStatusIndex(taskID, from)
	ms.byStatus[to] = append(ms.byStatus[to], taskID)
}

func (ms *MemoryStorage) remove(task *Task) {
	ms.removeFromStatusIndex(task.ID, task.Status)
	ms.removeFromQueueIndex(task.ID, task.Queue)
	delete(ms.tasks, task.ID)
}

// pruneCompleted keeps the newest retention completed tasks of queue.
func (ms *MemoryStorage) pruneCompleted(queue string) {
	var completed []*Task
	for _, id := range ms.byQueue[queue] {
		if t := ms.tasks[id]; t.Status == TaskStatusCompleted {
			completed = append(completed, t)
		}
	}
	if len(completed) <= ms.retention {
		return
	}

	slices.SortFunc(completed, func(a, b *Task) int { return cmp.Compare(b.ProcessedAt.UnixNano(), a.ProcessedAt.UnixNano()) })
	for _, t := range completed[ms.retention:] {
		ms.remove(t)
	}
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

func (ms *MemoryStorage) removeFromQueueIndex(taskID uuid.UUID, queue string) {
	ms.byQueue[queue] = slices.DeleteFunc(ms.byQueue[queue], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// lockExpirationManager recovers tasks held by workers that died.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			_, _ = ms.RecoverExpiredLocks(context.Background())
		case <-ms.done:
			return
		}
	}
}

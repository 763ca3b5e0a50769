package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/metrics"
)

// Worker processes tasks from the queue
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	pullInterval      time.Duration
	lockTimeout       time.Duration
	lockCheckInterval time.Duration
	logger            *slog.Logger
	metrics           *metrics.Collector

	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		lockCheckInterval:  30 * time.Second,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	workerID := uuid.New()
	return &Worker{
		repo:              repo,
		handlers:          make(map[string]Handler),
		queues:            options.queues,
		workerID:          workerID,
		sem:               make(chan struct{}, options.maxConcurrentTasks),
		pullInterval:      options.pullInterval,
		lockTimeout:       options.lockTimeout,
		lockCheckInterval: options.lockCheckInterval,
		logger: options.logger.With(
			logger.Component("queue.worker"),
			slog.String("worker_id", workerID.String()),
		),
		metrics: options.metrics,
	}, nil
}

// RegisterHandler registers a single task handler
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple task handlers
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}

	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run(runCtx)
	if rec, ok := w.repo.(LockRecoverer); ok {
		go w.recoverLocks(runCtx, rec)
	}

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active tasks to complete")
	w.wg.Wait()
	w.logger.Info("worker stopped")

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop
func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// stopMu keeps wg.Add from racing with Stop's wg.Wait
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if _, err := w.ProcessNext(ctx); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("failed to process task", logger.Error(err))
					}
				}()
			default:
				w.logger.Debug("all worker slots busy, skipping tick")
			}
		}
	}
}

func (w *Worker) recoverLocks(ctx context.Context, rec LockRecoverer) {
	ticker := time.NewTicker(w.lockCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rec.RecoverExpiredLocks(ctx)
			if err != nil {
				w.logger.Error("failed to recover expired locks", logger.Error(err))
				continue
			}
			if n > 0 {
				w.logger.Warn("recovered tasks with expired locks", logger.Count("tasks", n))
			}
		}
	}
}

// ProcessNext claims one due task and runs it synchronously, reporting
// whether a task was claimed. Handler errors are recorded on the task; the
// returned error covers storage failures and ErrHandlerNotFound.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	w.logger.Debug("claimed task",
		logger.TaskID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		slog.Int("attempt", task.Attempts))

	// Bookkeeping must survive worker shutdown so a finished task is not
	// left locked.
	return true, w.processTask(context.WithoutCancel(ctx), task)
}

// processTask executes a task with its handler
func (w *Worker) processTask(ctx context.Context, task *Task) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked",
				logger.TaskID(task.ID.String()),
				slog.String("task_name", task.TaskName),
				slog.Any("panic", r))
			retErr = w.handleTaskFailure(ctx, task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(ctx, task)
	}

	// The handler never outlives its lock, so locks need no extension.
	hctx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()

	err := handler.Handle(hctx, task.Payload)
	duration := time.Since(start)

	if err != nil {
		return w.handleTaskFailure(ctx, task, err, duration)
	}

	return w.handleTaskSuccess(ctx, task, duration)
}

// handleMissingHandler moves the task straight to the dead letter queue;
// retrying cannot help until a handler is deployed, after which the task
// can be replayed.
func (w *Worker) handleMissingHandler(ctx context.Context, task *Task) error {
	w.logger.Error("no handler registered for task type",
		logger.TaskID(task.ID.String()),
		slog.String("task_name", task.TaskName))

	errorMsg := "no handler registered for task type: " + task.TaskName
	if err := w.repo.FailTask(ctx, task.ID, errorMsg); err != nil {
		return fmt.Errorf("failed to mark task %s as failed: %w", task.ID, err)
	}

	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	w.metrics.TaskObserved(task.Queue, metrics.TaskDeadLettered, 0)

	return ErrHandlerNotFound
}

// handleTaskFailure records the error; FailTask reschedules the task with
// backoff while attempts remain, otherwise the task goes to the DLQ.
func (w *Worker) handleTaskFailure(ctx context.Context, task *Task, execErr error, duration time.Duration) error {
	w.logger.Error("task failed",
		logger.TaskID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.Int("attempt", task.Attempts),
		slog.Int("max_attempts", task.MaxAttempts),
		logger.Duration(duration),
		logger.Error(execErr))

	if err := w.repo.FailTask(ctx, task.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, err)
	}

	if !task.Exhausted() {
		w.metrics.TaskObserved(task.Queue, metrics.TaskRetried, duration)
		return nil
	}

	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ after max attempts: %w", task.ID, err)
	}
	w.metrics.TaskObserved(task.Queue, metrics.TaskDeadLettered, duration)

	w.logger.Warn("task moved to dead letter queue",
		logger.TaskID(task.ID.String()),
		slog.String("task_name", task.TaskName))

	return nil
}

func (w *Worker) handleTaskSuccess(ctx context.Context, task *Task, duration time.Duration) error {
	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}
	w.metrics.TaskObserved(task.Queue, metrics.TaskCompleted, duration)

	w.logger.Info("task completed successfully",
		logger.TaskID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		logger.Duration(duration))

	return nil
}

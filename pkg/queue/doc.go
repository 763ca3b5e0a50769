// Package queue provides a repository-agnostic task queue with bounded
// retries and a dead letter queue.
//
// The package is organised around two components:
//
//   - Enqueuer: adds tasks to the queue
//   - Worker: claims due tasks and dispatches them to a registered Handler
//
// Components interact only through small repository interfaces
// (EnqueuerRepository, WorkerRepository, LockRecoverer, DeadLetterRepository).
// MemoryStorage backs tests and local runs; PgStorage keeps tasks in Postgres
// and claims them with FOR UPDATE SKIP LOCKED.
//
// # Retries
//
// Every task carries its own policy: MaxAttempts (default 3) and a backoff
// base (default 1s plus up to 200ms of jitter, drawn once at enqueue time).
// After attempt n fails the task becomes due again after base*2^(n-1). A
// task that fails its last attempt, or has no handler, is moved to the dead
// letter queue where it stays until replayed with RequeueFromDLQ. Completed
// tasks are pruned to the newest DefaultCompletedRetention per queue.
//
// # Usage
//
//	type SendReport struct {
//	    OrgID string
//	}
//
//	e, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("reports"))
//	task, err := e.Enqueue(ctx, SendReport{OrgID: "org_1"}, queue.WithMaxAttempts(5))
//
//	w, _ := queue.NewWorker(storage, queue.WithQueues("reports"))
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p SendReport) error {
//	    return send(ctx, p.OrgID)
//	}))
//	g.Go(w.Run(ctx))
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrInvalidPriority, ErrNoHandlers) signal
// violations of business invariants and can be checked with errors.Is.
package queue

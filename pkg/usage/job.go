package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/queue"
	"github.com/dmitrymomot/flagship/pkg/tenant"
)

const (
	// QueueName is the queue that carries asynchronous ingestion jobs.
	QueueName = "flagship:usage-ingest"

	// JobName names IngestJob tasks.
	JobName = "usage.ingest"
)

// IngestJob is the task payload for one asynchronous ingestion request.
type IngestJob struct {
	RequestID     string    `json:"requestId"`
	EnvironmentID string    `json:"environmentId"`
	OrgID         string    `json:"orgId"`
	ProjectID     string    `json:"projectId"`
	PlanID        string    `json:"planId,omitempty"`
	Events        []Event   `json:"events"`
	QueuedAt      time.Time `json:"queuedAt"`
}

func (j IngestJob) scope() tenant.Scope {
	return tenant.Scope{
		ProjectID:     j.ProjectID,
		EnvironmentID: j.EnvironmentID,
		OrgID:         j.OrgID,
		PlanID:        j.PlanID,
	}
}

// Partition is the queue partition key of jobs enqueued for scope. Dead
// letters are listed and replayed per partition.
func Partition(scope tenant.Scope) string {
	return scope.EnvironmentID + "/" + scope.OrgID
}

// EnqueueResult acknowledges a queued request.
type EnqueueResult struct {
	JobID    string    `json:"jobId"`
	QueuedAt time.Time `json:"queuedAt"`
}

// TaskEnqueuer is satisfied by *queue.Enqueuer.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (*queue.Task, error)
}

// IngestQueue turns ingestion requests into queue tasks.
type IngestQueue struct {
	enqueuer TaskEnqueuer
	cfg      Config
	now      func() time.Time
}

func NewIngestQueue(enqueuer TaskEnqueuer, cfg Config) *IngestQueue {
	if cfg.JobAttempts <= 0 {
		cfg.JobAttempts = queue.DefaultMaxAttempts
	}
	if cfg.JobBackoff <= 0 {
		cfg.JobBackoff = queue.DefaultBackoffBase
	}
	return &IngestQueue{enqueuer: enqueuer, cfg: cfg, now: time.Now}
}

// Enqueue validates events and stores them as a single job. Invalid batches
// are rejected here so they never reach the worker.
func (q *IngestQueue) Enqueue(ctx context.Context, scope tenant.Scope, events []Event, requestID string) (*EnqueueResult, error) {
	if err := ValidateEvents(events); err != nil {
		return nil, err
	}

	job := IngestJob{
		RequestID:     requestID,
		EnvironmentID: scope.EnvironmentID,
		OrgID:         scope.OrgID,
		ProjectID:     scope.ProjectID,
		PlanID:        scope.PlanID,
		Events:        events,
		QueuedAt:      q.now().UTC(),
	}

	task, err := q.enqueuer.Enqueue(ctx, job,
		queue.WithQueue(QueueName),
		queue.WithTaskName(JobName),
		queue.WithPartition(Partition(scope)),
		queue.WithMaxAttempts(q.cfg.JobAttempts),
		queue.WithBackoff(q.cfg.JobBackoff),
	)
	if err != nil {
		return nil, errors.Join(ErrEnqueueFailed, err)
	}

	return &EnqueueResult{JobID: task.ID.String(), QueuedAt: job.QueuedAt}, nil
}

// JobHandler processes IngestJob tasks. A job in which any event failed to
// record returns ErrPartialFailure so the queue retries it; events already
// applied under an idempotency key are skipped on the retry. Invalid jobs
// are dropped since retrying cannot fix them.
func (i *Ingestor) JobHandler() queue.Handler {
	return queue.NewNamedTaskHandler(JobName, func(ctx context.Context, job IngestJob) error {
		res, err := i.Ingest(ctx, job.Events, job.scope(), Options{RequestID: job.RequestID})
		if errors.Is(err, ErrInvalidBatch) {
			i.log.WarnContext(ctx, "dropping invalid usage job",
				logger.RequestID(job.RequestID),
				logger.EnvironmentID(job.EnvironmentID),
				logger.Error(err),
			)
			return nil
		}
		if err != nil {
			return err
		}

		if res.Failed() {
			return ErrPartialFailure
		}

		i.log.InfoContext(ctx, "usage job processed",
			logger.RequestID(job.RequestID),
			logger.EnvironmentID(job.EnvironmentID),
			logger.OrgID(job.OrgID),
			logger.Count("accepted", res.Accepted),
			logger.Count("rejected", res.Rejected),
			slog.Duration("queue_latency", i.now().Sub(job.QueuedAt)),
		)
		return nil
	})
}

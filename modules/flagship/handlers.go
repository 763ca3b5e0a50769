package flagship

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/flagship/handler"
	"github.com/dmitrymomot/flagship/pkg/binder"
	"github.com/dmitrymomot/flagship/pkg/evaluation"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/queue"
	"github.com/dmitrymomot/flagship/pkg/tenant"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

type api struct {
	opts    RouterOptions
	log     *slog.Logger
	onError handler.ErrorHandler[handler.Context]
}

type ingestRequest struct {
	Events  []usage.Event `json:"events" query:"-"`
	Summary bool          `json:"-" query:"summary"`
}

// IngestAck acknowledges a queued ingestion request.
type IngestAck struct {
	RequestID  string    `json:"requestId"`
	Status     string    `json:"status"`
	QueuedAt   time.Time `json:"queuedAt"`
	EventCount int       `json:"eventCount"`
	JobID      string    `json:"jobId"`
}

type deadLetterQuery struct {
	Queue string `query:"queue"`
	Limit int    `query:"limit"`
}

// DeadLetterList is the body of GET /v1/usage/dead-letters.
type DeadLetterList struct {
	Items []queue.DeadLetter `json:"items"`
}

type replayRequest struct {
	ID string `path:"id"`
}

// ReplayAck is the body of a dead letter replay.
type ReplayAck struct {
	JobID string `json:"jobId"`
}

func wrap[R any](a *api, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](a.onError),
	)
}

func scopeOf(ctx handler.Context) (tenant.Scope, error) {
	s, ok := tenant.FromContext(ctx)
	if !ok {
		return tenant.Scope{}, handler.ErrBadRequest.WithMessage(tenant.ErrNoScopeInContext.Error())
	}
	return s, nil
}

func (a *api) evaluate() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req evaluation.Request) handler.Response {
		scope, err := scopeOf(ctx)
		if err != nil {
			return handler.Error(err)
		}
		resp, err := a.opts.Evaluator.Evaluate(ctx, req, scope)
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(resp)
	}, binder.JSON())
}

func (a *api) ingestSync() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req ingestRequest) handler.Response {
		scope, err := scopeOf(ctx)
		if err != nil {
			return handler.Error(err)
		}
		res, err := a.opts.Ingestor.Ingest(ctx, req.Events, scope, usage.Options{
			IncludeSummary: req.Summary,
			RequestID:      a.opts.NewID(),
		})
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(res)
	}, binder.JSON(), binder.Query())
}

func (a *api) ingestAsync() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req ingestRequest) handler.Response {
		scope, err := scopeOf(ctx)
		if err != nil {
			return handler.Error(err)
		}
		requestID := a.opts.NewID()
		res, err := a.opts.Queue.Enqueue(ctx, scope, req.Events, requestID)
		if err != nil {
			return handler.Error(err)
		}

		a.log.InfoContext(ctx, "usage batch queued",
			logger.RequestID(requestID),
			logger.TaskID(res.JobID),
			logger.Count("events", len(req.Events)),
		)
		return handler.JSON(IngestAck{
			RequestID:  requestID,
			Status:     "queued",
			QueuedAt:   res.QueuedAt,
			EventCount: len(req.Events),
			JobID:      res.JobID,
		}, handler.WithJSONStatus(http.StatusAccepted))
	}, binder.JSON())
}

func (a *api) listDeadLetters() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, q deadLetterQuery) handler.Response {
		scope, err := scopeOf(ctx)
		if err != nil {
			return handler.Error(err)
		}
		if q.Limit <= 0 {
			q.Limit = defaultDeadLetterLimit
		}
		q.Limit = min(q.Limit, maxDeadLetterLimit)
		if q.Queue == "" {
			q.Queue = usage.QueueName
		}

		items, err := a.opts.DeadLetters.ListDLQ(ctx, queue.DeadLetterFilter{
			Queue:     q.Queue,
			Partition: usage.Partition(scope),
			Limit:     q.Limit,
		})
		if err != nil {
			return handler.Error(err)
		}
		if items == nil {
			items = []queue.DeadLetter{}
		}
		return handler.JSON(DeadLetterList{Items: items})
	}, binder.Query())
}

func (a *api) replayDeadLetter() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req replayRequest) handler.Response {
		scope, err := scopeOf(ctx)
		if err != nil {
			return handler.Error(err)
		}
		id, err := uuid.Parse(req.ID)
		if err != nil {
			return handler.Error(handler.ErrBadRequest.WithMessage("invalid dead letter id"))
		}

		task, err := a.opts.DeadLetters.RequeueFromDLQ(ctx, id, usage.Partition(scope))
		if errors.Is(err, queue.ErrDeadLetterNotFound) {
			return handler.Error(handler.ErrNotFound.WithMessage("dead letter not found"))
		}
		if err != nil {
			return handler.Error(err)
		}

		a.log.InfoContext(ctx, "dead letter replayed",
			slog.String("dead_letter_id", id.String()),
			logger.TaskID(task.ID.String()),
		)
		return handler.JSON(ReplayAck{JobID: task.ID.String()}, handler.WithJSONStatus(http.StatusAccepted))
	}, binder.Path(chi.URLParam))
}

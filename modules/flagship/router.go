package flagship

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/flagship/handler"
	"github.com/dmitrymomot/flagship/pkg/evaluation"
	"github.com/dmitrymomot/flagship/pkg/httpserver"
	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/queue"
	"github.com/dmitrymomot/flagship/pkg/tenant"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

// Evaluator is satisfied by *evaluation.Service.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request, scope tenant.Scope) (*evaluation.Response, error)
}

// Ingestor is satisfied by *usage.Ingestor.
type Ingestor interface {
	Ingest(ctx context.Context, events []usage.Event, scope tenant.Scope, opts usage.Options) (*usage.IngestResult, error)
}

// IngestQueue is satisfied by *usage.IngestQueue.
type IngestQueue interface {
	Enqueue(ctx context.Context, scope tenant.Scope, events []usage.Event, requestID string) (*usage.EnqueueResult, error)
}

// RouterOptions wires the API. Evaluator and Ingestor are required; routes
// backed by a nil IngestQueue or DeadLetters are not mounted.
type RouterOptions struct {
	Evaluator   Evaluator
	Ingestor    Ingestor
	Queue       IngestQueue
	DeadLetters queue.DeadLetterRepository

	// Resolver derives the tenant scope; defaults to tenant.HeaderResolver.
	Resolver tenant.Resolver

	Logger      *slog.Logger
	Metrics     http.Handler
	ReadyChecks []httpserver.Check

	// NewID generates request IDs; defaults to uuid.NewString.
	NewID func() string
}

// Router builds the HTTP API:
//
//	POST /v1/evaluate
//	POST /v1/usage/ingest
//	POST /v1/usage/ingest/sync
//	GET  /v1/usage/dead-letters
//	POST /v1/usage/dead-letters/{id}/replay
//	GET  /healthz, /readyz, /metrics
func Router(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Resolver == nil {
		opts.Resolver = tenant.NewHeaderResolver()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	log := opts.Logger.With(logger.Component("api"))
	api := &api{opts: opts, log: log, onError: handler.NewErrorHandler(log)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, recoverer(log))

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, opts.ReadyChecks...))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(tenant.Middleware(opts.Resolver, scopeError))

		v1.Post("/evaluate", api.evaluate())
		v1.Route("/usage", func(u chi.Router) {
			u.Post("/ingest/sync", api.ingestSync())
			if opts.Queue != nil {
				u.Post("/ingest", api.ingestAsync())
			}
			if opts.DeadLetters != nil {
				u.Get("/dead-letters", api.listDeadLetters())
				u.Post("/dead-letters/{id}/replay", api.replayDeadLetter())
			}
		})
	})

	return r
}

func scopeError(w http.ResponseWriter, r *http.Request, err error) {
	_ = handler.JSONError(handler.ErrBadRequest.WithMessage(err.Error())).Render(w, r)
}

// recoverer turns handler panics into a logged 500 envelope.
func recoverer(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.ErrorContext(r.Context(), "panic in http handler",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				_ = handler.JSONError(handler.ErrInternalServerError).Render(w, r)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDExtractor adds chi's request ID to log records written with a
// request context.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := middleware.GetReqID(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return slog.String("http_request_id", id), true
	}
}

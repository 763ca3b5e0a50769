package flagship_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagship/modules/flagship"
	"github.com/dmitrymomot/flagship/pkg/evaluation"
	"github.com/dmitrymomot/flagship/pkg/feature"
	"github.com/dmitrymomot/flagship/pkg/httpserver"
	"github.com/dmitrymomot/flagship/pkg/idempotency"
	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/metrics"
	"github.com/dmitrymomot/flagship/pkg/queue"
	"github.com/dmitrymomot/flagship/pkg/tenant"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

type fixture struct {
	router  http.Handler
	counts  *usage.MemoryStore
	storage *queue.MemoryStorage
}

func setup(t *testing.T, mutate ...func(*flagship.RouterOptions)) *fixture {
	t.Helper()

	provider, err := feature.NewMemoryProvider(
		feature.Feature{ProjectID: "proj", Key: "dark-mode", Type: feature.TypeBoolean, Enabled: true, DefaultValue: true},
		feature.Feature{ProjectID: "proj", Key: "beta", Type: feature.TypeBoolean, Enabled: false, DefaultValue: true},
	)
	require.NoError(t, err)

	src, err := limits.NewMemorySource(limits.UsageLimit{
		EnvironmentID: "env", MetricKey: "api_calls", LimitType: limits.LimitCount,
		LimitValue: 10, PeriodType: limits.PeriodMonth, Enforcement: limits.EnforcementHard,
	})
	require.NoError(t, err)

	counts := usage.NewMemoryStore()
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	m := metrics.New(metrics.Config{Namespace: "test"})
	opts := flagship.RouterOptions{
		Evaluator: evaluation.NewService(
			feature.NewEvaluator(provider),
			limits.NewEvaluator(src, counts),
			evaluation.WithMetrics(m),
		),
		Ingestor:    usage.NewIngestor(counts, idempotency.NewService(idempotency.NewMemoryBackend()), src),
		Queue:       usage.NewIngestQueue(enqueuer, usage.Config{}),
		DeadLetters: storage,
		Metrics:     m.Handler(),
		NewID:       func() string { return "req-fixed" },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return &fixture{router: flagship.Router(opts), counts: counts, storage: storage}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, "env", "org", method, path, body)
}

func (f *fixture) doAs(t *testing.T, env, org, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(tenant.HeaderProjectID, "proj")
	req.Header.Set(tenant.HeaderEnvironmentID, env)
	req.Header.Set(tenant.HeaderOrgID, org)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestRouter_Probes(t *testing.T) {
	t.Parallel()

	f := setup(t, func(o *flagship.RouterOptions) {
		o.ReadyChecks = []httpserver.Check{{Name: "pg", Fn: func(context.Context) error { return errors.New("down") }}}
	})

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.do(t, http.MethodPost, "/v1/evaluate", `{"features":["dark-mode"]}`)
	rec = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_evaluations_total")
}

func TestRouter_Scope(t *testing.T) {
	t.Parallel()
	f := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tenant.HeaderProjectID, "proj")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[errorBody](t, rec).Error.Code)
}

func TestRouter_Evaluate(t *testing.T) {
	t.Parallel()
	f := setup(t)

	_, err := f.counts.IncrementUsage(context.Background(), "env", "org", "api_calls", 10, time.Now())
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/v1/evaluate",
		`{"features":["dark-mode","beta","nope"],"limits":["api_calls","seats"],"context":{"userId":"u1"},"debug":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[evaluation.Response](t, rec)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, feature.Result{Value: true, Reason: feature.ReasonDefaultValue}, resp.Features["dark-mode"])
	assert.Equal(t, feature.Result{Value: false, Reason: feature.ReasonDisabled}, resp.Features["beta"])
	assert.Equal(t, feature.Result{Value: false, Reason: feature.ReasonNotFound}, resp.Features["nope"])
	assert.Equal(t, limits.Result{Allowed: false, Current: 10, Limit: 10, Remaining: 0, Reason: limits.ReasonHardLimitExceeded}, resp.Limits["api_calls"])
	assert.Equal(t, limits.Result{Allowed: true, Current: 0, Limit: limits.Unlimited, Remaining: limits.Unlimited, Reason: limits.ReasonNoLimitDefined}, resp.Limits["seats"])

	rec = f.do(t, http.MethodPost, "/v1/evaluate", `{"features":["dark-mode"]}`)
	assert.NotContains(t, rec.Body.String(), "reason")

	rec = f.do(t, http.MethodPost, "/v1/evaluate", `{"features":"dark-mode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_IngestSync(t *testing.T) {
	t.Parallel()
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/usage/ingest/sync?summary=true",
		`{"events":[{"metric":"api_calls","delta":3,"idempotencyKey":"k"},{"metric":"api_calls","delta":3,"idempotencyKey":"k"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[usage.IngestResult](t, rec)
	assert.Equal(t, "req-fixed", res.RequestID)
	assert.Equal(t, 1, res.Accepted)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, usage.MetricSummary{Current: 3, Limit: 10, Remaining: 7}, res.Summary["api_calls"])

	t.Run("invalid batch", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/usage/ingest/sync", `{"events":[{"metric":"","delta":1}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, "validation_error", body.Error.Code)
		assert.Contains(t, body.Error.Details, "events[0].metric")
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/usage/ingest/sync", `{"events":[],"extra":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decode[errorBody](t, rec).Error.Code)
	})
}

func TestRouter_IngestAsync(t *testing.T) {
	t.Parallel()
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/usage/ingest", `{"events":[{"metric":"api_calls","delta":1},{"metric":"seats","delta":2}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ack := decode[flagship.IngestAck](t, rec)
	assert.Equal(t, "req-fixed", ack.RequestID)
	assert.Equal(t, "queued", ack.Status)
	assert.Equal(t, 2, ack.EventCount)
	assert.False(t, ack.QueuedAt.IsZero())

	task, ok := f.storage.Task(uuid.MustParse(ack.JobID))
	require.True(t, ok)
	assert.Equal(t, usage.QueueName, task.Queue)

	t.Run("not mounted without queue", func(t *testing.T) {
		f := setup(t, func(o *flagship.RouterOptions) { o.Queue = nil })
		rec := f.do(t, http.MethodPost, "/v1/usage/ingest", `{"events":[{"metric":"m","delta":1}]}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_DeadLetters(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	task := &queue.Task{
		ID:          uuid.New(),
		Queue:       usage.QueueName,
		TaskName:    usage.JobName,
		Partition:   "env/org",
		Payload:     json.RawMessage(`{"events":[]}`),
		Status:      queue.TaskStatusPending,
		Priority:    queue.PriorityDefault,
		MaxAttempts: 1,
		BackoffBase: time.Second,
		ScheduledAt: time.Now().Add(-time.Second),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.storage.CreateTask(ctx, task))
	require.NoError(t, f.storage.MoveToDLQ(ctx, task.ID))

	rec := f.do(t, http.MethodGet, "/v1/usage/dead-letters?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[flagship.DeadLetterList](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, task.ID, list.Items[0].TaskID)

	rec = f.do(t, http.MethodPost, "/v1/usage/dead-letters/"+list.Items[0].ID.String()+"/replay", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	ack := decode[flagship.ReplayAck](t, rec)
	_, ok := f.storage.Task(uuid.MustParse(ack.JobID))
	assert.True(t, ok)

	rec = f.do(t, http.MethodPost, "/v1/usage/dead-letters/"+list.Items[0].ID.String()+"/replay", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/usage/dead-letters/not-a-uuid/replay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/usage/dead-letters", "")
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestRouter_DeadLettersAreTenantScoped(t *testing.T) {
	t.Parallel()
	f := setup(t)

	rec := f.doAs(t, "victim-env", "victim-org", http.MethodPost, "/v1/usage/ingest",
		`{"events":[{"metric":"secret","delta":1}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := uuid.MustParse(decode[flagship.IngestAck](t, rec).JobID)
	require.NoError(t, f.storage.MoveToDLQ(context.Background(), jobID))

	rec = f.do(t, http.MethodGet, "/v1/usage/dead-letters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = f.doAs(t, "victim-env", "victim-org", http.MethodGet, "/v1/usage/dead-letters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[flagship.DeadLetterList](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, jobID, list.Items[0].TaskID)

	replay := "/v1/usage/dead-letters/" + list.Items[0].ID.String() + "/replay"
	rec = f.do(t, http.MethodPost, replay, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.doAs(t, "victim-env", "victim-org", http.MethodPost, replay, "")
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

type panickingEvaluator struct{}

func (panickingEvaluator) Evaluate(context.Context, evaluation.Request, tenant.Scope) (*evaluation.Response, error) {
	panic("boom")
}

func TestRouter_Recover(t *testing.T) {
	t.Parallel()
	f := setup(t, func(o *flagship.RouterOptions) { o.Evaluator = panickingEvaluator{} })

	rec := f.do(t, http.MethodPost, "/v1/evaluate", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[errorBody](t, rec).Error.Code)
}

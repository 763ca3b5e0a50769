package evaluation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagship/pkg/evaluation"
	"github.com/dmitrymomot/flagship/pkg/feature"
	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/metrics"
	"github.com/dmitrymomot/flagship/pkg/tenant"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

type mockFeatures struct {
	mock.Mock
}

func (m *mockFeatures) EvaluateFeatures(ctx context.Context, keys []string, ec feature.EvalContext) (map[string]feature.Result, error) {
	args := m.Called(ctx, keys, ec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]feature.Result), args.Error(1)
}

type mockLimits struct {
	mock.Mock
}

func (m *mockLimits) EvaluateLimits(ctx context.Context, keys []string, ec limits.EvalContext) (map[string]limits.Result, error) {
	args := m.Called(ctx, keys, ec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]limits.Result), args.Error(1)
}

var scope = tenant.Scope{ProjectID: "proj", EnvironmentID: "prod", OrgID: "org_1", PlanID: "pro"}

func TestService_Evaluate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty request touches nothing", func(t *testing.T) {
		t.Parallel()
		fe, le := new(mockFeatures), new(mockLimits)

		resp, err := evaluation.NewService(fe, le).Evaluate(ctx, evaluation.Request{}, scope)
		require.NoError(t, err)
		assert.Empty(t, resp.Features)
		assert.Empty(t, resp.Limits)
		assert.NotNil(t, resp.Features)
		assert.NotNil(t, resp.Limits)
		_, err = uuid.Parse(resp.RequestID)
		assert.NoError(t, err)
		fe.AssertNotCalled(t, "EvaluateFeatures", mock.Anything, mock.Anything, mock.Anything)
		le.AssertNotCalled(t, "EvaluateLimits", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("scope and attributes reach evaluators", func(t *testing.T) {
		t.Parallel()
		fe, le := new(mockFeatures), new(mockLimits)
		defer fe.AssertExpectations(t)
		defer le.AssertExpectations(t)

		attrs := map[string]any{"userId": "u1"}
		fe.On("EvaluateFeatures", mock.Anything, []string{"f1"}, feature.EvalContext{
			ProjectID: "proj", EnvironmentID: "prod", OrgID: "org_1", PlanID: "pro", Attributes: attrs, Debug: true,
		}).Return(map[string]feature.Result{"f1": {Value: true, Reason: feature.ReasonDefaultValue}}, nil).Once()
		le.On("EvaluateLimits", mock.Anything, []string{"api_calls"}, limits.EvalContext{
			EnvironmentID: "prod", OrgID: "org_1", PlanID: "pro", Debug: true,
		}).Return(map[string]limits.Result{"api_calls": {Allowed: true, Limit: -1, Remaining: -1, Reason: limits.ReasonNoLimitDefined}}, nil).Once()

		fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
		svc := evaluation.NewService(fe, le, evaluation.WithClock(func() time.Time { return fixed }))
		resp, err := svc.Evaluate(ctx, evaluation.Request{Features: []string{"f1"}, Limits: []string{"api_calls"}, Context: attrs}, scope)
		require.NoError(t, err)

		assert.Equal(t, fixed.UTC(), resp.EvaluatedAt)
		assert.Equal(t, time.UTC, resp.EvaluatedAt.Location())
		assert.Equal(t, feature.Result{Value: true}, resp.Features["f1"])
		assert.Equal(t, limits.Result{Allowed: true, Limit: -1, Remaining: -1}, resp.Limits["api_calls"])
	})

	t.Run("debug keeps reasons", func(t *testing.T) {
		t.Parallel()
		fe := new(mockFeatures)
		fe.On("EvaluateFeatures", mock.Anything, []string{"f1"}, mock.Anything).
			Return(map[string]feature.Result{"f1": {Value: false, Reason: feature.ReasonNotFound}}, nil).Once()

		resp, err := evaluation.NewService(fe, new(mockLimits)).Evaluate(ctx, evaluation.Request{Features: []string{"f1"}, Debug: true}, scope)
		require.NoError(t, err)
		assert.Equal(t, feature.ReasonNotFound, resp.Features["f1"].Reason)
	})

	t.Run("request ids are unique", func(t *testing.T) {
		t.Parallel()
		svc := evaluation.NewService(new(mockFeatures), new(mockLimits))
		a, err := svc.Evaluate(ctx, evaluation.Request{}, scope)
		require.NoError(t, err)
		b, err := svc.Evaluate(ctx, evaluation.Request{}, scope)
		require.NoError(t, err)
		assert.NotEqual(t, a.RequestID, b.RequestID)
	})

	t.Run("either side failing fails the call", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("db down")
		fe, le := new(mockFeatures), new(mockLimits)
		fe.On("EvaluateFeatures", mock.Anything, mock.Anything, mock.Anything).
			Return(map[string]feature.Result{"f1": {Value: true}}, nil).Maybe()
		le.On("EvaluateLimits", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom).Once()

		resp, err := evaluation.NewService(fe, le).Evaluate(ctx, evaluation.Request{Features: []string{"f1"}, Limits: []string{"m"}}, scope)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, resp)
	})
}

func TestService_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider, err := feature.NewMemoryProvider(feature.Feature{
		ProjectID: "proj", Key: "f1", Type: feature.TypeBoolean, Enabled: true, DefaultValue: true,
	})
	require.NoError(t, err)
	src, err := limits.NewMemorySource(limits.UsageLimit{
		EnvironmentID: "prod", MetricKey: "api_calls", LimitType: limits.LimitCount,
		LimitValue: 10, PeriodType: limits.PeriodMonth, Enforcement: limits.EnforcementHard,
	})
	require.NoError(t, err)
	store := usage.NewMemoryStore()
	_, err = store.IncrementUsage(ctx, "prod", "org_1", "api_calls", 4, time.Now())
	require.NoError(t, err)

	m := metrics.New(metrics.Config{Namespace: "test"})
	svc := evaluation.NewService(
		feature.NewEvaluator(provider),
		limits.NewEvaluator(src, store),
		evaluation.WithMetrics(m),
	)

	resp, err := svc.Evaluate(ctx, evaluation.Request{Features: []string{"f1"}, Limits: []string{"api_calls"}}, scope)
	require.NoError(t, err)
	assert.Equal(t, map[string]feature.Result{"f1": {Value: true}}, resp.Features)
	assert.Equal(t, map[string]limits.Result{"api_calls": {Allowed: true, Current: 4, Limit: 10, Remaining: 6}}, resp.Limits)

	n, err := testutil.GatherAndCount(m.Registry(), "test_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

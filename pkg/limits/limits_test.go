package limits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagship/pkg/limits"
	"github.com/dmitrymomot/flagship/pkg/usage"
)

func limit(plan, metric string, value int64, enforcement limits.Enforcement) limits.UsageLimit {
	return limits.UsageLimit{
		EnvironmentID: "prod",
		PlanID:        plan,
		MetricKey:     metric,
		LimitType:     limits.LimitCount,
		LimitValue:    value,
		PeriodType:    limits.PeriodMonth,
		Enforcement:   enforcement,
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	hard := limit("", "api_calls", 1000, limits.EnforcementHard)
	soft := limit("", "api_calls", 1000, limits.EnforcementSoft)

	tests := []struct {
		name    string
		limit   *limits.UsageLimit
		current int64
		want    limits.Result
	}{
		{"no limit", nil, 42, limits.Result{Allowed: true, Current: 42, Limit: -1, Remaining: -1, Reason: limits.ReasonNoLimitDefined}},
		{"hard within", &hard, 999, limits.Result{Allowed: true, Current: 999, Limit: 1000, Remaining: 1, Reason: limits.ReasonWithinHardLimit}},
		{"hard at limit", &hard, 1000, limits.Result{Allowed: false, Current: 1000, Limit: 1000, Remaining: 0, Reason: limits.ReasonHardLimitExceeded}},
		{"hard over limit", &hard, 1500, limits.Result{Allowed: false, Current: 1500, Limit: 1000, Remaining: 0, Reason: limits.ReasonHardLimitExceeded}},
		{"soft within", &soft, 10, limits.Result{Allowed: true, Current: 10, Limit: 1000, Remaining: 990, Reason: limits.ReasonWithinSoftLimit}},
		{"soft over limit", &soft, 1500, limits.Result{Allowed: true, Current: 1500, Limit: 1000, Remaining: 0, Reason: limits.ReasonSoftLimitExceeded}},
		{"negative usage", &hard, -5, limits.Result{Allowed: true, Current: -5, Limit: 1000, Remaining: 1005, Reason: limits.ReasonWithinHardLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, limits.Evaluate(tt.limit, tt.current))
		})
	}
}

func TestResolveLimits(t *testing.T) {
	t.Parallel()

	def := limit("", "api_calls", 100, limits.EnforcementHard)
	pro := limit("pro", "api_calls", 10000, limits.EnforcementHard)
	team := limit("team", "api_calls", 500, limits.EnforcementHard)
	seats := limit("", "seats", 5, limits.EnforcementSoft)

	got := limits.ResolveLimits([]limits.UsageLimit{pro, def, team, seats}, "pro")
	assert.Equal(t, map[string]limits.UsageLimit{"api_calls": pro, "seats": seats}, got)

	got = limits.ResolveLimits([]limits.UsageLimit{pro, def, team}, "")
	assert.Equal(t, map[string]limits.UsageLimit{"api_calls": def}, got)

	got = limits.ResolveLimits([]limits.UsageLimit{pro}, "free")
	assert.Empty(t, got)
}

func TestUsageLimit_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, limit("", "m", 1, limits.EnforcementHard).Validate())

	bad := limit("", "m", -1, "advisory")
	bad.PeriodType = "fortnight"
	err := bad.Validate()
	require.ErrorIs(t, err, limits.ErrInvalidLimit)
	assert.Contains(t, err.Error(), "fortnight")
	assert.Contains(t, err.Error(), "advisory")

	w := 120
	bad = limit("", "m", 1, limits.EnforcementHard)
	bad.WarningThreshold = &w
	assert.ErrorIs(t, bad.Validate(), limits.ErrInvalidLimit)
}

func TestMemorySource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src, err := limits.NewMemorySource(
		limit("", "api_calls", 100, limits.EnforcementHard),
		limit("pro", "api_calls", 10000, limits.EnforcementHard),
		limit("", "seats", 5, limits.EnforcementSoft),
	)
	require.NoError(t, err)

	got, err := src.Limits(ctx, "prod", "pro", []string{"api_calls", "seats", "storage"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(10000), got["api_calls"].LimitValue)

	got, err = src.Limits(ctx, "staging", "pro", []string{"api_calls"})
	require.NoError(t, err)
	assert.Empty(t, got)

	l, err := limits.Lookup(ctx, src, "prod", "free", "api_calls")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, int64(100), l.LimitValue)

	l, err = limits.Lookup(ctx, src, "prod", "", "storage")
	require.NoError(t, err)
	assert.Nil(t, l)

	err = src.Add(limit("pro", "api_calls", 1, limits.EnforcementSoft))
	assert.ErrorIs(t, err, limits.ErrDuplicateLimit)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Limits(ctx context.Context, environmentID, planID string, metricKeys []string) (map[string]limits.UsageLimit, error) {
	args := m.Called(ctx, environmentID, planID, metricKeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]limits.UsageLimit), args.Error(1)
}

func TestEvaluator_EvaluateLimits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	newEvaluator := func(t *testing.T) (*limits.Evaluator, *usage.MemoryStore) {
		t.Helper()
		src, err := limits.NewMemorySource(
			limit("", "api_calls", 1000, limits.EnforcementHard),
			limit("pro", "api_calls", 5000, limits.EnforcementHard),
			limit("", "storage", 100, limits.EnforcementSoft),
		)
		require.NoError(t, err)
		store := usage.NewMemoryStore()
		return limits.NewEvaluator(src, store, limits.WithClock(func() time.Time { return now })), store
	}

	t.Run("empty keys", func(t *testing.T) {
		t.Parallel()
		ev, _ := newEvaluator(t)
		got, err := ev.EvaluateLimits(ctx, nil, limits.EvalContext{EnvironmentID: "prod", OrgID: "org"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("current period usage against plan limit", func(t *testing.T) {
		t.Parallel()
		ev, store := newEvaluator(t)

		_, err := store.IncrementUsage(ctx, "prod", "org", "api_calls", 1200, now)
		require.NoError(t, err)
		_, err = store.IncrementUsage(ctx, "prod", "org", "storage", 250, now)
		require.NoError(t, err)
		// Previous month does not count.
		_, err = store.IncrementUsage(ctx, "prod", "org", "api_calls", 9999, now.AddDate(0, -1, 0))
		require.NoError(t, err)

		got, err := ev.EvaluateLimits(ctx, []string{"api_calls", "storage", "exports"}, limits.EvalContext{EnvironmentID: "prod", OrgID: "org", Debug: true})
		require.NoError(t, err)
		assert.Equal(t, limits.Result{Allowed: false, Current: 1200, Limit: 1000, Remaining: 0, Reason: limits.ReasonHardLimitExceeded}, got["api_calls"])
		assert.Equal(t, limits.Result{Allowed: true, Current: 250, Limit: 100, Remaining: 0, Reason: limits.ReasonSoftLimitExceeded}, got["storage"])
		assert.Equal(t, limits.Result{Allowed: true, Current: 0, Limit: -1, Remaining: -1, Reason: limits.ReasonNoLimitDefined}, got["exports"])

		got, err = ev.EvaluateLimits(ctx, []string{"api_calls"}, limits.EvalContext{EnvironmentID: "prod", OrgID: "org", PlanID: "pro"})
		require.NoError(t, err)
		assert.Equal(t, limits.Result{Allowed: true, Current: 1200, Limit: 5000, Remaining: 3800}, got["api_calls"])
	})

	t.Run("limit source failure propagates", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("db down")
		src := new(mockSource)
		defer src.AssertExpectations(t)
		src.On("Limits", mock.Anything, "prod", "", []string{"api_calls"}).Return(nil, boom).Once()

		ev := limits.NewEvaluator(src, usage.NewMemoryStore())
		_, err := ev.EvaluateLimits(ctx, []string{"api_calls"}, limits.EvalContext{EnvironmentID: "prod", OrgID: "org"})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, limits.ErrFailedToLoadLimits)
	})
}

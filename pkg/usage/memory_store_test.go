package usage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagship/pkg/usage"
)

func TestMemoryStore_IncrementUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	t.Run("seeds and accumulates", func(t *testing.T) {
		t.Parallel()
		s := usage.NewMemoryStore()

		v, err := s.IncrementUsage(ctx, "env", "org", "api_calls", 5, ts)
		require.NoError(t, err)
		assert.EqualValues(t, 5, v)

		v, err = s.IncrementUsage(ctx, "env", "org", "api_calls", -2, ts)
		require.NoError(t, err)
		assert.EqualValues(t, 3, v)
	})

	t.Run("lone decrement seeds zero", func(t *testing.T) {
		t.Parallel()
		s := usage.NewMemoryStore()

		v, err := s.IncrementUsage(ctx, "env", "org", "seats", -4, ts)
		require.NoError(t, err)
		assert.EqualValues(t, 0, v)
	})

	t.Run("order of deltas does not matter once seeded", func(t *testing.T) {
		t.Parallel()
		orders := [][]int64{
			{5, -2, 3},
			{5, 3, -2},
			{3, -2, 5},
			{3, 5, -2},
		}
		for _, deltas := range orders {
			s := usage.NewMemoryStore()
			var last int64
			for _, d := range deltas {
				v, err := s.IncrementUsage(ctx, "env", "org", "m", d, ts)
				require.NoError(t, err)
				last = v
			}
			assert.EqualValues(t, 6, last, "deltas %v", deltas)
		}
	})

	t.Run("separate buckets per month and tenant", func(t *testing.T) {
		t.Parallel()
		s := usage.NewMemoryStore()

		_, _ = s.IncrementUsage(ctx, "env", "org", "m", 1, ts)
		_, _ = s.IncrementUsage(ctx, "env", "org", "m", 1, ts.AddDate(0, 1, 0))
		_, _ = s.IncrementUsage(ctx, "env", "org-2", "m", 1, ts)
		_, _ = s.IncrementUsage(ctx, "env-2", "org", "m", 1, ts)

		assert.Len(t, s.Counters(), 4)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		t.Parallel()
		s := usage.NewMemoryStore()

		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.IncrementUsage(ctx, "env", "org", "m", 1, ts)
			}()
		}
		wg.Wait()

		got, err := s.CurrentUsage(ctx, "env", "org", []string{"m"}, ts)
		require.NoError(t, err)
		assert.EqualValues(t, 100, got["m"])
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		s := usage.NewMemoryStore()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.IncrementUsage(cctx, "env", "org", "m", 1, ts)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMemoryStore_CurrentUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	s := usage.NewMemoryStore()
	_, _ = s.IncrementUsage(ctx, "env", "org", "a", 7, ts)
	_, _ = s.IncrementUsage(ctx, "env", "org", "b", 2, ts.AddDate(0, -1, 0))

	got, err := s.CurrentUsage(ctx, "env", "org", []string{"a", "b", "c"}, ts)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 7}, got)
}

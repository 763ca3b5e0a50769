package usage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/flagship/pkg/usage"
)

func TestCalculatePeriodBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    time.Time
		start time.Time
		end   time.Time
	}{
		{
			name:  "leap day end of day",
			in:    time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
			start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, 2, 29, 23, 59, 59, 999_000_000, time.UTC),
		},
		{
			name:  "non leap february",
			in:    time.Date(2023, 2, 10, 8, 0, 0, 0, time.UTC),
			start: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2023, 2, 28, 23, 59, 59, 999_000_000, time.UTC),
		},
		{
			name:  "december rolls into next year",
			in:    time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
			start: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, 12, 31, 23, 59, 59, 999_000_000, time.UTC),
		},
		{
			name:  "first instant of month",
			in:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, 3, 31, 23, 59, 59, 999_000_000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := usage.CalculatePeriodBoundaries(tt.in)
			assert.True(t, tt.start.Equal(p.Start), "start: %s", p.Start)
			assert.True(t, tt.end.Equal(p.End), "end: %s", p.End)
			assert.True(t, p.Contains(tt.in))
		})
	}
}

func TestCalculatePeriodBoundaries_TimezoneIndependent(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	// 2024-03-01 05:00 JST is still February in UTC.
	local := time.Date(2024, 3, 1, 5, 0, 0, 0, tokyo)
	utc := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, usage.CalculatePeriodBoundaries(utc), usage.CalculatePeriodBoundaries(local))
}

func TestPeriodContains(t *testing.T) {
	t.Parallel()

	p := usage.CalculatePeriodBoundaries(time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC))
	assert.True(t, p.Contains(p.Start))
	assert.True(t, p.Contains(p.End))
	assert.False(t, p.Contains(p.End.Add(time.Millisecond)))
	assert.False(t, p.Contains(p.Start.Add(-time.Nanosecond)))
}

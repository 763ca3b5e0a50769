package usage

import "time"

// Period is a closed interval covering one UTC calendar month.
type Period struct {
	Start time.Time
	End   time.Time
}

// CalculatePeriodBoundaries returns the UTC calendar month containing t.
// Start is the first instant of the month and End is 23:59:59.999 on its
// last day. The result depends only on the UTC year and month of t.
func CalculatePeriodBoundaries(t time.Time) Period {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return Period{Start: start, End: end}
}

// Contains reports whether t falls inside the period, bounds included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

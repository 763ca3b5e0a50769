package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/flagship/pkg/pg"
)

// PgStore keeps counters in the usage_metrics table. The upsert relies on
// the unique (environment_id, org_id, metric_key, period_start) index, so
// concurrent writers serialize on the row instead of racing.
type PgStore struct {
	db pg.DBTX
}

func NewPgStore(db pg.DBTX) *PgStore {
	return &PgStore{db: db}
}

const incrementUsageSQL = `
INSERT INTO usage_metrics (environment_id, org_id, metric_key, period_start, period_end, current_value, last_updated_at)
VALUES ($1, $2, $3, $4, $5, GREATEST($6::bigint, 0), now())
ON CONFLICT (environment_id, org_id, metric_key, period_start)
DO UPDATE SET current_value = usage_metrics.current_value + $6::bigint, last_updated_at = now()
RETURNING current_value`

func (s *PgStore) IncrementUsage(ctx context.Context, environmentID, orgID, metricKey string, delta int64, ts time.Time) (int64, error) {
	period := CalculatePeriodBoundaries(ts)

	var current int64
	err := s.db.QueryRow(ctx, incrementUsageSQL,
		environmentID, orgID, metricKey, period.Start, period.End, delta,
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", metricKey, err)
	}
	return current, nil
}

const currentUsageSQL = `
SELECT metric_key, current_value
FROM usage_metrics
WHERE environment_id = $1
  AND org_id = $2
  AND metric_key = ANY($3)
  AND period_start <= $4
  AND period_end >= $4`

func (s *PgStore) CurrentUsage(ctx context.Context, environmentID, orgID string, metricKeys []string, at time.Time) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, currentUsageSQL, environmentID, orgID, metricKeys, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64, len(metricKeys))
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	return out, nil
}

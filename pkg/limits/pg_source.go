package limits

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/flagship/pkg/pg"
)

// PgSource reads limits from the usage_limits table.
type PgSource struct {
	db pg.DBTX
}

func NewPgSource(db pg.DBTX) *PgSource {
	return &PgSource{db: db}
}

const limitsSQL = `
SELECT id, environment_id, COALESCE(plan_id, ''), metric_key, limit_type, limit_value,
       period_type, enforcement, warning_threshold
FROM usage_limits
WHERE environment_id = $1
  AND metric_key = ANY($2)
  AND (plan_id IS NULL OR plan_id = NULLIF($3, ''))`

func (s *PgSource) Limits(ctx context.Context, environmentID, planID string, metricKeys []string) (map[string]UsageLimit, error) {
	rows, err := s.db.Query(ctx, limitsSQL, environmentID, metricKeys, planID)
	if err != nil {
		return nil, fmt.Errorf("query limits: %w", err)
	}

	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UsageLimit, error) {
		var (
			l         UsageLimit
			threshold *int32
		)
		err := row.Scan(&l.ID, &l.EnvironmentID, &l.PlanID, &l.MetricKey, &l.LimitType,
			&l.LimitValue, &l.PeriodType, &l.Enforcement, &threshold)
		if threshold != nil {
			w := int(*threshold)
			l.WarningThreshold = &w
		}
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan limits: %w", err)
	}
	return ResolveLimits(candidates, planID), nil
}

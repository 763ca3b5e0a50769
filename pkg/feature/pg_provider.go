package feature

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/flagship/pkg/logger"
	"github.com/dmitrymomot/flagship/pkg/pg"
)

// PgProvider reads features, rules and plan entitlements from Postgres.
// Rules whose stored payload does not decode are skipped and logged so one
// bad row cannot take down evaluation of the whole project.
type PgProvider struct {
	db  pg.DBTX
	log *slog.Logger
}

func NewPgProvider(db pg.DBTX, log *slog.Logger) *PgProvider {
	if log == nil {
		log = logger.Noop()
	}
	return &PgProvider{db: db, log: log.With(logger.Component("feature.pg"))}
}

const selectFeaturesSQL = `
SELECT id, project_id, key, name, type, default_value, enabled, metadata
FROM features
WHERE project_id = $1 AND key = ANY($2)`

const selectRulesSQL = `
SELECT id, feature_id, environment_id, rule_type, value, priority
FROM feature_rules
WHERE feature_id = ANY($1) AND environment_id = $2 AND enabled
ORDER BY priority DESC`

func (p *PgProvider) FindFeaturesWithRules(ctx context.Context, projectID, environmentID string, keys []string) (map[string]*Feature, error) {
	rows, err := p.db.Query(ctx, selectFeaturesSQL, projectID, keys)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Feature, len(keys))
	byID := make(map[string]*Feature, len(keys))
	for rows.Next() {
		f := &Feature{}
		var typ string
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Key, &f.Name, &typ, &f.DefaultValue, &f.Enabled, &f.Metadata); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		f.Type = Type(typ)
		out[f.Key] = f
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	if len(byID) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	ruleRows, err := p.db.Query(ctx, selectRulesSQL, ids, environmentID)
	if err != nil {
		return nil, fmt.Errorf("query feature rules: %w", err)
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		var (
			r   = Rule{Enabled: true}
			typ string
			raw []byte
		)
		if err := ruleRows.Scan(&r.ID, &r.FeatureID, &r.EnvironmentID, &typ, &raw, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan feature rule: %w", err)
		}
		r.Type = RuleType(typ)

		v, err := DecodeStoredRuleValue(r.Type, raw)
		if err != nil {
			p.log.WarnContext(ctx, "skipping feature rule with invalid value",
				slog.String("rule_id", r.ID),
				slog.String("rule_type", typ),
				logger.Error(err),
			)
			continue
		}
		r.Value = v

		if f, ok := byID[r.FeatureID]; ok {
			f.Rules = append(f.Rules, r)
		}
	}
	if err := ruleRows.Err(); err != nil {
		return nil, fmt.Errorf("read feature rules: %w", err)
	}

	return out, nil
}

const isFeatureInPlanSQL = `
SELECT EXISTS (
	SELECT 1 FROM plan_features
	WHERE plan_id = $1 AND feature_id = $2 AND enabled
)`

func (p *PgProvider) IsFeatureInPlan(ctx context.Context, featureID, planID string) (bool, error) {
	var ok bool
	if err := p.db.QueryRow(ctx, isFeatureInPlanSQL, planID, featureID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query plan entitlement: %w", err)
	}
	return ok, nil
}

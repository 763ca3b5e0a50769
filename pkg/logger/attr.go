package logger

import (
	"log/slog"
	"time"
)

// Error records err under the key "error". A nil error yields an empty Attr,
// which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component tags a record with the subsystem that produced it.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func RequestID(id string) slog.Attr {
	return optionalString("request_id", id)
}

func ProjectID(id string) slog.Attr {
	return optionalString("project_id", id)
}

func EnvironmentID(id string) slog.Attr {
	return optionalString("environment_id", id)
}

func OrgID(id string) slog.Attr {
	return optionalString("org_id", id)
}

func PlanID(id string) slog.Attr {
	return optionalString("plan_id", id)
}

// Metric records a usage metric key.
func Metric(key string) slog.Attr {
	return slog.String("metric", key)
}

// TaskID records a queue task identifier.
func TaskID(id string) slog.Attr {
	return optionalString("task_id", id)
}

// Duration records an elapsed time in milliseconds so JSON output stays numeric.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64("duration_ms", float64(d)/float64(time.Millisecond))
}

// Count records a named cardinality such as the number of events in a batch.
func Count(name string, n int) slog.Attr {
	return slog.Int(name, n)
}

// Scope groups the tenant identifiers of a request under "scope".
func Scope(projectID, environmentID, orgID string) slog.Attr {
	return slog.Group("scope",
		slog.String("project_id", projectID),
		slog.String("environment_id", environmentID),
		slog.String("org_id", orgID),
	)
}

func optionalString(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}

// Package usage records metered usage per organization and calendar month.
//
// Counters live behind Store (MemoryStore or PgStore). Ingestor applies a
// batch of events in order, deduplicating keyed events through the
// idempotency service and rejecting timestamps outside [now-7d, now+1h].
// IngestQueue defers a batch to the task queue; Ingestor.JobHandler is the
// matching worker handler.
//
//	ing := usage.NewIngestor(store, idem, limitSource, usage.WithLogger(log))
//	res, err := ing.Ingest(ctx, events, scope, usage.Options{IncludeSummary: true})
package usage

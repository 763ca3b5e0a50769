// Package logger builds *slog.Logger instances with functional options and
// provides attribute helpers so field names stay consistent across packages.
//
// Request-scoped values (request IDs, tenant scope) are attached through
// ContextExtractor callbacks that run on every record logged with a context:
//
//	log := logger.New(
//		logger.WithEnvironment("production", "flagship"),
//		logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
//			id := middleware.GetReqID(ctx)
//			return logger.RequestID(id), id != ""
//		}),
//	)
//	log.InfoContext(ctx, "usage ingested", logger.EnvironmentID(envID), logger.Count("events", n))
package logger

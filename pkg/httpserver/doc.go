// Package httpserver wraps net/http with functional options, lifecycle
// hooks and context-driven graceful shutdown.
//
// Run blocks until its context is cancelled or Shutdown is called, then
// drains in-flight requests within the configured shutdown timeout. Listen
// failures wrap ErrStart and shutdown failures wrap ErrShutdown.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	r.Get("/healthz", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log,
//		httpserver.Check{Name: "postgres", Fn: pool.Ping},
//	))
//	err := srv.Run(ctx, r)
package httpserver

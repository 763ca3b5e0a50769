// Package metrics exposes flagship's Prometheus series through a single
// nil-safe Collector.
package metrics

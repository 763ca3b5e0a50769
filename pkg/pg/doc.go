// Package pg wires PostgreSQL through jackc/pgx/v5: pool creation with
// startup retries, goose migrations, a transaction helper, readiness probes
// and helpers that classify driver errors.
package pg

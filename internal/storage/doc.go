// Package storage persists leagues, cursors, watchers and the outbox.
//
// Drivers:
//   - "memory": process-local maps, nothing survives a restart
//   - "sqlite": a SQLite file (modernc.org/sqlite, no cgo)
//   - "postgres": a PostgreSQL database (lib/pq)
//
// SQL drivers share one sqlx implementation; schema changes are embedded
// golang-migrate migrations applied on Open.
package storage

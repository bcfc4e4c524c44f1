// Package history persists detection sessions and their alertness changes in
// SQLite.
//
// Store implements session.Recorder so the controller can hand it lifecycle
// events directly. The schema is managed by embedded, ordered migrations
// recorded in schema_migrations; the database runs in WAL mode so the CLI can
// read history while the daemon writes it.
package history

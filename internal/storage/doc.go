// Package storage keeps an optional audit log of delivered notifications.
//
// Engine state (pending batches, countdown tracking) is never persisted; the
// audit log only records what was sent, for operators.
//
// Drivers:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage

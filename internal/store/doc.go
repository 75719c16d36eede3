// Package store provides durable storage for case events and transfer
// watermarks.
//
// Three implementations share one contract: a SQLite edge store (the
// generator's local database), a PostgreSQL central store (the transfer
// destination), and an in-memory store for tests. All event writes are
// idempotent: re-inserting an existing event id affects zero rows and
// returns no error, so a transfer batch can be retried safely.
package store

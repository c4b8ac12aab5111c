// Package store provides SQLite-backed persisted state for the grants indexer.
//
// A namespace is one database file. Every mutation arrives as a
// model.DataChange through ApplyChange, which writes the change log row and
// the mutation in a single transaction:
//
//   - Projects, project roles and pending project roles
//   - Rounds and applications, including their aggregate donation stats
//   - Donations and prices (bulk inserts chunked under the parameter ceiling)
//
// # Idempotent Replay
//
// The change log id is content-addressed over (seq, change). Applying a change
// whose id is already logged is a no-op, so a change log can be replayed into
// the same or another namespace any number of times.
//
// # Deterministic Reads
//
// List queries order by their primary key so results are identical across
// replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store

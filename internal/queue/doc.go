// Package queue persists pipeline jobs and exposes the primitives every
// worker coordinates through: the atomic claim, the stage transition, and the
// done/failed ledger.
//
// One Store serves a single pipeline table on either SQLite or PostgreSQL.
// All mutations are single-statement transactions, so concurrent workers on
// separate processes or hosts need no coordination beyond the database
// itself. Claim ordering is priority descending with recency as the
// tie-breaker; a claimed row is owned by its claimant until a transition
// releases it.
//
// Treat this package as the single source of truth for queue semantics; when
// you add stages or columns, update both schema files and bump schemaVersion.
package queue

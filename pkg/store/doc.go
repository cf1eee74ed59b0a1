// Package store defines the persistence gateway consumed by every gatehouse
// component, and the configuration used to select a backend at startup.
//
// Two interchangeable implementations ship with the repository:
//
//   - store/memory: mutex-guarded in-process maps, suitable for development,
//     tests, and embedded use
//   - store/postgres: database/sql against PostgreSQL, relying on unique
//     constraints and ON CONFLICT DO NOTHING for idempotent link inserts
//
// Both surface iam.ErrNotFound and iam.ErrConflict distinctly and provide the
// same atomicity guarantees for composite-key operations.
package store

// Package session persists live login sessions in Redis.
//
// Sessions are stored as compact versioned binary blobs under a configurable
// key prefix, with a per-user set index so every session belonging to an
// account can be revoked in one call. Password rotation relies on that:
// completing a reset revokes the whole index, completing an authenticated
// change revokes everything except the session that drove it.
//
// # Architecture boundaries
//
// This package owns session persistence only. Token issuance lives in the
// jwt package; who may create or destroy a session is decided by the Engine.
//
// # What this package must NOT do
//
//   - Decide authentication outcomes. It stores and deletes what it is told.
//   - Import any other goRecover package.
package session

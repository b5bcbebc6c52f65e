// Package goRecover provides a security-question account-recovery engine with
// Redis-backed transient flow state, argon2id password hashing, and pluggable
// credential storage.
//
// The package covers two flows over the same challenge machinery:
//
//   - The reset flow: an unauthenticated user names an account, answers two of
//     their five configured security questions, and sets a new password.
//   - The change flow: an authenticated user confirms two security questions
//     before changing their own password.
//
// Both flows are strict three-step state machines. Each transition executes in
// one call, reads and writes a single session record, and either advances the
// session or returns one of the sentinel errors in errors.go. A session's
// verified flag only ever moves from false to true; retrying after a failed
// completion means starting a fresh session.
//
// # Architecture boundaries
//
// goRecover is the public surface. It exposes [Engine], [Builder], [Config],
// the question catalog, and value types. Flow orchestration, session records,
// and throttling live under internal/ and are never exported. Callers supply
// account lookup through [UserProvider] and question persistence through
// [CredentialStore]; ready-made stores live under credstore/.
//
// # What this package must NOT do
//
//   - Expose Redis clients, session encodings, or answer digests in its public API.
//   - Compare answers without normalization, or store them in cleartext.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
package goRecover

// Package flows holds the pure orchestration logic for the recovery engine's
// state machines. Each Run function implements one public operation and is
// parameterized by a Deps struct supplying stores, policy, and error values,
// so this package never imports the root package and is testable without
// Redis or a database.
package flows

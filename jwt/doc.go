// Package jwt issues and verifies the short-lived access tokens handed out
// at login.
//
// Tokens carry the user id and session id; a token is only as alive as the
// Redis session it names, so revoking the session revokes the token at the
// next validation.
//
// # Architecture boundaries
//
// This package owns token format and signatures only. Session liveness is
// checked by the Engine against the session store.
//
// # What this package must NOT do
//
//   - Touch Redis or any store.
//   - Import any other goRecover package.
package jwt

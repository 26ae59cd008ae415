// Package auth provides the credential primitives shared by the account and
// ledger services.
//
// This package implements:
//   - bcrypt password hashing with a configurable cost
//   - constant-time password comparison
//
// Session tokens live in services/token; request authentication lives in
// the middleware package.
package auth

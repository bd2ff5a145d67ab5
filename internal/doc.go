// Package internal contains helper utilities that are intentionally private
// to verify, including secure verification-code generation.
//
// # Sub-packages
//
//   - limiters — issuance lockout and confirm-window throttles
//   - stores — the Redis-backed challenge record store
//
// # What this package must NOT do
//
//   - Export types that appear in the public verify API.
//   - Be imported by any package outside the verify module.
package internal

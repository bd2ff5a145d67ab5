// Package limiters provides the two throttles of the verification engine.
//
// # Limiters
//
//   - [IssueLimiter] — per-identity consecutive delivery-failure counter
//     with a temporary lockout once the threshold is reached.
//   - [ConfirmLimiter] — fixed-window per-identity + per-IP throttle on
//     code submissions.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy
// thresholds come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import verify or any sibling internal package.
//   - Make policy decisions beyond counting — the engine decides consequences.
package limiters

// Package stores provides the Redis-backed, short-lived challenge record
// store behind the verification engine.
//
// # Design
//
// One record per identity key, persisted as a versioned binary encoding with
// the challenge TTL as the Redis key TTL, so eviction of expired records is
// native to the cache. Saving over an existing key supersedes the prior
// challenge — that is the engine's invalidation mechanism for re-issued
// codes. Consume runs as a single Lua script so fetch, expiry check, code
// comparison, attempt counting, and deletion are atomic per key; the script's
// expiresAt comparison is the binding expiry check regardless of key TTL.
// Records are single-use: deleted on match, and deleted once the wrong-code
// attempt cap is reached.
//
// # What this package must NOT do
//
//   - Import verify or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores

// Package rate provides the Redis fixed-window counter shared by route rate
// limiting and the login failure guard.
//
// # Window semantics
//
// A single Lua script performs "SET key 1 PX window NX, else INCR" and returns
// the count with the remaining PTTL. The TTL is applied at creation only, so
// the window boundary is fixed by the first event. Key prefixes:
//   - arl: route and action limits (scope:identifier)
//   - alf: login failures per IP (internal/limiters)
//
// # What this package must NOT do
//
//   - Decide fail-open or fail-closed. Backend errors are returned as
//     ErrRedisUnavailable and the caller picks the policy.
//   - Implement domain-specific policies (those live in internal/limiters).
package rate

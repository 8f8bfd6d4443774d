// Package limiters provides domain-specific limiters built on top of the
// internal/rate primitives.
//
// [LoginGuard] counts failed logins per source IP and locks the IP once the
// threshold is reached within the window. It is nil-safe: methods on a nil
// guard allow everything.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Decide consequences. Flow functions decide whether a guard outage
//     fails open.
package limiters

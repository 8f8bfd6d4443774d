// Package flows contains pure-function orchestrators for every Engine
// operation: RunAuthenticate, RunLogin, RunRefresh and RunLogout.
//
// Each flow accepts a typed dependency struct of function fields and returns
// a result carrying a [FailureKind] instead of a host error. The Engine maps
// kinds to its public sentinels, records metrics and emits audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows

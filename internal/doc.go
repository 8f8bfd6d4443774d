// Package internal holds helpers private to authcore: session identifier
// generation, token hashing and login identifier normalization.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - device: User-Agent and GeoIP enrichment for audit events
//   - flows: login, refresh, logout and authenticate orchestration
//   - limiters: the per-IP login failure guard
//   - rate: the Redis fixed-window counter
//   - config: environment-driven process configuration for cmd/authcore
package internal

// Package middleware adapts authcore.Engine to net/http.
//
// # Handlers
//
//   - [Authenticate] rejects requests without a valid bearer access token.
//   - [AuthenticateOptional] attaches an identity when one is present and
//     never rejects.
//   - [RequireRole] rejects identities outside a role set.
//   - [RateLimit] counts requests in a fixed window per client.
//   - [ClientMetadata] resolves the client IP and User-Agent.
//   - [RequestLogger] writes one structured access log line per request.
//
// Every rejection is written by [WriteError] as a single JSON shape:
// {"code", "message", "timestamp"} plus "retryAfter" on 429 responses.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Authentication
// and counting decisions are made by the Engine; this package never parses
// tokens or talks to Redis.
package middleware

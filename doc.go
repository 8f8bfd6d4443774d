// Package authcore is the authentication, session and rate-limiting core of
// the procurement platform.
//
// An [Engine] issues HS256 access and refresh tokens, keeps revocable
// sessions as a Redis cache record backed by a durable record, denies
// logged-out access tokens through a revocation list, counts events in
// fixed windows, and locks out source IPs after repeated failed logins.
// Engine methods are safe to call from multiple goroutines once
// [Builder.Build] has returned.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types such as [Identity] and [RateDecision].
// Flow orchestration, rate counting, audit dispatch and device enrichment
// live under internal/. HTTP adapters live in middleware and httpapi;
// durable session backends live under store/.
//
// # Failure policy
//
// Credential and session checks fail closed: any backend error during
// [Engine.Authenticate] rejects the request. Rate limiting and the login
// failure guard fail open: the request proceeds and the outage is logged
// through a sampled logger.
//
// # Performance contract
//
// Authenticate costs one revocation EXISTS, one session GET and one
// principal lookup. TryAcquire is a single Lua script call. Login is
// dominated by one argon2id verification.
package authcore

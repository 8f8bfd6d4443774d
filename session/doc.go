// Package session implements the dual-backed session: a Redis cache record
// consulted on every authenticated request, and a durable record consulted
// on refresh.
//
// # Binary encoding
//
// Cache records use a compact versioned binary format. The session id is the
// Redis key and is not repeated in the payload.
//
// # Consistency
//
// A session is usable only while the cache record exists and its stored
// expiry is in the future. Refresh validity is decided against the durable
// record alone; when the cache record is lost but the durable record is
// still valid, [Store.Restore] rebuilds it. [Store.Delete] always attempts
// both removals.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Store raw refresh tokens. Only SHA-256 digests reach a RecordStore.
package session

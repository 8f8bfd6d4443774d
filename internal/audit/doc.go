// Package audit implements async event dispatching for security-relevant
// operations (logins, refreshes, logouts, lockouts, revocations).
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, fan-out, no-op).
//     The Kafka sink lives in audit/kafkasink.
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
package audit

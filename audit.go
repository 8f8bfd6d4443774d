package authcore

import (
	"io"

	internalaudit "github.com/procuregov/authcore/internal/audit"
)

// AuditEvent is one security-relevant occurrence: a login, refresh, logout,
// lockout or rate-limit denial.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's background dispatcher.
// Sinks that implement io.Closer are closed by [Engine.Close].
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

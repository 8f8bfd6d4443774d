// Package kafkasink streams audit events to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"

	"github.com/procuregov/authcore/internal/audit"
	skafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the subset of kafka.Writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Sink publishes each event as one JSON message keyed by principal id, so
// one principal's events stay ordered within a partition.
type Sink struct {
	writer Writer
	logger *zap.Logger
}

// New creates a Sink writing to topic on the given brokers.
func New(brokers []string, topic string, logger *zap.Logger) *Sink {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		AllowAutoTopicCreation: false,
		RequiredAcks:           skafka.RequireOne,
	}
	return NewWithWriter(w, logger)
}

// NewWithWriter allows injecting a test writer.
func NewWithWriter(w Writer, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: w, logger: logger}
}

// Emit implements audit.Sink. Failures are logged, never returned; audit
// delivery must not fail the request that produced the event.
func (s *Sink) Emit(ctx context.Context, event audit.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit event marshal failed", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	msg := skafka.Message{
		Key:   []byte(event.PrincipalID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []skafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("audit event publish failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}

// Close closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

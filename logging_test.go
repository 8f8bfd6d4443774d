package authcore

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDegradedLoggerBudget(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var suppressedCalls int
	d := newDegradedLogger(zap.New(core), LoggingConfig{DegradedPerSecond: 0.001, DegradedBurst: 2}, func() {
		suppressedCalls++
	})

	outage := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	for i := 0; i < 10; i++ {
		d.Log("rate_limit", true, outage)
	}

	if logs.Len() != 2 {
		t.Fatalf("expected 2 logged entries, got %d", logs.Len())
	}
	if d.Suppressed() != 8 || suppressedCalls != 8 {
		t.Fatalf("expected 8 suppressed, got %d (callbacks %d)", d.Suppressed(), suppressedCalls)
	}

	entry := logs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("fail-open outage should log at warn, got %s", entry.Level)
	}
	if entry.ContextMap()["component"] != "rate_limit" {
		t.Fatalf("missing component field: %v", entry.ContextMap())
	}
}

func TestDegradedLoggerFailClosedIsError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := newDegradedLogger(zap.New(core), LoggingConfig{}, nil)

	d.Log("authenticate", false, errors.New("timeout"))

	if logs.Len() != 1 || logs.All()[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected a single error entry, got %v", logs.All())
	}
}

func TestDegradedLoggerNilSafe(t *testing.T) {
	var d *degradedLogger
	d.Log("x", true, errors.New("y"))
	if d.Suppressed() != 0 {
		t.Fatalf("nil logger must report zero")
	}
}

// Package otel publishes engine metrics as OpenTelemetry observable
// instruments. Values are read from the engine snapshot at collection time.
package otel

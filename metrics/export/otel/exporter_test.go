package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/procuregov/authcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[authcore.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authcore.MetricsSnapshot{
		Counters:   make(map[authcore.MetricID]uint64, len(f.counters)),
		Histograms: map[authcore.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[authcore.MetricAuthenticateLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findInt64(rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, p := range points {
				if p.Attributes.Equals(&want) {
					return p.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterCollectsCountersAndBuckets(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginLocked:     3,
			authcore.MetricRateLimitDenied: 5,
		},
		latency: []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped: 1,
	}

	exp, err := NewFromSource(provider.Meter("authcore-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	v, ok := findInt64(rm, "authcore_login_locked_total")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	v, ok = findInt64(rm, "authcore_rate_limit_denied_total")
	require.True(t, ok)
	assert.Equal(t, int64(5), v)

	v, ok = findInt64(rm, "authcore_authenticate_latency_seconds_bucket", attribute.String("le", "0.005"))
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	v, ok = findInt64(rm, "authcore_authenticate_latency_seconds_bucket", attribute.String("le", "+Inf"))
	require.True(t, ok)
	assert.Equal(t, int64(8), v)

	v, ok = findInt64(rm, "authcore_audit_dropped_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestExporterSkipsHistogramWhenLatencyDisabled(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[authcore.MetricID]uint64{authcore.MetricLogout: 2}}

	exp, err := NewFromSource(provider.Meter("authcore-test"), src)
	require.NoError(t, err)
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	_, ok := findInt64(rm, "authcore_authenticate_latency_seconds_bucket", attribute.String("le", "+Inf"))
	assert.False(t, ok)
	v, ok := findInt64(rm, "authcore_logout_total")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()

	_, err := NewFromSource(provider.Meter("authcore-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = New(provider.Meter("authcore-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1}}

	exp, err := NewFromSource(provider.Meter("authcore-test"), src)
	require.NoError(t, err)
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[authcore.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

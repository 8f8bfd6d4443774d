package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginInactive
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshRestored
	MetricTokenMismatch
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	MetricAuthenticateRevoked
	MetricAuthenticateBackendFailure
	MetricRateLimitAllowed
	MetricRateLimitDenied
	MetricRateLimitDegraded
	MetricLoginGuardDegraded
	MetricDegradedLogSuppressed
	MetricAuthenticateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the authenticate latency
// buckets. A final overflow bucket catches everything slower.
var latencyBounds = [...]time.Duration{
	time.Millisecond,
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// slot keeps one counter per cache line.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus the authenticate latency
// histogram. A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]slot
	buckets [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram slices
// hold per-bucket (not cumulative) counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d. Only MetricAuthenticateLatency carries a histogram;
// other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricAuthenticateLatency {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricAuthenticateLatency {
			snap.Counters[id] = m.slots[id].n.Load()
		}
	}
	if m.latency {
		counts := make([]uint64, latencyBucketCount)
		for i := range counts {
			counts[i] = m.buckets[i].Load()
		}
		snap.Histograms[MetricAuthenticateLatency] = counts
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}

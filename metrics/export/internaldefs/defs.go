package internaldefs

import (
	"github.com/procuregov/authcore"
)

// Namespace prefixes every exported series.
const Namespace = "authcore"

// CounterDef maps an engine counter to an exported series.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to an exported series.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: Namespace + "_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: Namespace + "_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authcore.MetricLoginLocked, Name: Namespace + "_login_locked_total", Help: "Logins rejected because the client IP is locked out."},
	{ID: authcore.MetricLoginInactive, Name: Namespace + "_login_inactive_total", Help: "Logins rejected because the principal is not active."},
	{ID: authcore.MetricRefreshSuccess, Name: Namespace + "_refresh_success_total", Help: "Successful refreshes."},
	{ID: authcore.MetricRefreshFailure, Name: Namespace + "_refresh_failure_total", Help: "Failed refreshes."},
	{ID: authcore.MetricRefreshRestored, Name: Namespace + "_refresh_cache_restored_total", Help: "Refreshes that rebuilt a missing cache entry from the durable record."},
	{ID: authcore.MetricTokenMismatch, Name: Namespace + "_refresh_token_mismatch_total", Help: "Refresh tokens that did not match the stored hash."},
	{ID: authcore.MetricSessionCreated, Name: Namespace + "_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionInvalidated, Name: Namespace + "_session_invalidated_total", Help: "Sessions invalidated by logout or token mismatch."},
	{ID: authcore.MetricLogout, Name: Namespace + "_logout_total", Help: "Logouts."},
	{ID: authcore.MetricAuthenticateSuccess, Name: Namespace + "_authenticate_success_total", Help: "Requests authenticated."},
	{ID: authcore.MetricAuthenticateFailure, Name: Namespace + "_authenticate_failure_total", Help: "Requests rejected by authentication."},
	{ID: authcore.MetricAuthenticateRevoked, Name: Namespace + "_authenticate_revoked_total", Help: "Requests presenting a revoked access token."},
	{ID: authcore.MetricAuthenticateBackendFailure, Name: Namespace + "_authenticate_backend_failure_total", Help: "Authentications that failed closed on a backend error."},
	{ID: authcore.MetricRateLimitAllowed, Name: Namespace + "_rate_limit_allowed_total", Help: "Rate limit checks that admitted the request."},
	{ID: authcore.MetricRateLimitDenied, Name: Namespace + "_rate_limit_denied_total", Help: "Rate limit checks that denied the request."},
	{ID: authcore.MetricRateLimitDegraded, Name: Namespace + "_rate_limit_degraded_total", Help: "Rate limit checks that failed open on a counter error."},
	{ID: authcore.MetricLoginGuardDegraded, Name: Namespace + "_login_guard_degraded_total", Help: "Login guard checks that failed open on a counter error."},
	{ID: authcore.MetricDegradedLogSuppressed, Name: Namespace + "_degraded_log_suppressed_total", Help: "Degraded-mode log lines dropped by sampling."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: Namespace + "_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// AuditDroppedName is the series for events the audit dispatcher discarded.
const AuditDroppedName = Namespace + "_audit_dropped_total"

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's bucket layout.
var HistogramBounds = []string{
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix names the per-bucket OTel gauges.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// Cumulative copies raw (missing buckets are zero) and converts it to
// running totals.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

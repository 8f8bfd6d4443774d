package authcore

import (
	"sync/atomic"

	"go.uber.org/zap"
	xrate "golang.org/x/time/rate"
)

// degradedLogger reports backend outages seen on the request path. During an
// outage every request hits this, so output is capped by a token bucket and
// the overflow is only counted.
type degradedLogger struct {
	logger     *zap.Logger
	limiter    *xrate.Limiter
	suppressed atomic.Uint64
	onSuppress func()
}

func newDegradedLogger(logger *zap.Logger, cfg LoggingConfig, onSuppress func()) *degradedLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := xrate.Limit(cfg.DegradedPerSecond)
	if cfg.DegradedPerSecond <= 0 {
		limit = xrate.Inf
	}
	if cfg.DegradedBurst <= 0 {
		cfg.DegradedBurst = 1
	}
	return &degradedLogger{
		logger:     logger,
		limiter:    xrate.NewLimiter(limit, cfg.DegradedBurst),
		onSuppress: onSuppress,
	}
}

// Log records one outage. failOpen tells whether the request was let
// through (rate limiting, login guard) or rejected (authentication).
func (d *degradedLogger) Log(component string, failOpen bool, err error, fields ...zap.Field) {
	if d == nil {
		return
	}
	if !d.limiter.Allow() {
		d.suppressed.Add(1)
		if d.onSuppress != nil {
			d.onSuppress()
		}
		return
	}

	fields = append(fields,
		zap.String("component", component),
		zap.Bool("fail_open", failOpen),
		zap.Error(err),
		zap.Uint64("suppressed_total", d.suppressed.Load()),
	)
	if failOpen {
		d.logger.Warn("backend unavailable, failing open", fields...)
		return
	}
	d.logger.Error("backend unavailable, failing closed", fields...)
}

// Suppressed returns how many events were dropped by the budget.
func (d *degradedLogger) Suppressed() uint64 {
	if d == nil {
		return 0
	}
	return d.suppressed.Load()
}

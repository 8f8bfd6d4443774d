package rate

import "errors"

var (
	// ErrRedisUnavailable wraps counter backend failures. Callers decide
	// whether that fails open or closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidArgument is returned for a non-positive limit or window, or an
	// empty scope or identifier.
	ErrInvalidArgument = errors.New("invalid rate limit argument")
)

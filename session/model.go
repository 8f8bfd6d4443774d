package session

import (
	"context"
	"time"
)

// Session is the cache record for one login. Its presence in Redis is the
// authoritative signal that the session is live.
type Session struct {
	SessionID   string
	PrincipalID string
	Role        string
	SourceIP    string
	UserAgent   string

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the stored expiry is at or before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

// Record is the durable representation of a session. Refresh validity is
// decided against it, never against the cache.
type Record struct {
	SessionID   string
	PrincipalID string
	RefreshHash [32]byte
	SourceIP    string
	UserAgent   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// RecordStore persists durable session records.
//
// Implementations must return ErrRecordNotFound for absent records, treat
// DeleteSessionRecord of an absent id as success, and make SwapRefreshHash a
// compare-and-swap that fails with ErrRefreshHashMismatch when the stored
// hash is not current.
type RecordStore interface {
	PersistSessionRecord(ctx context.Context, rec Record) error
	FindSessionRecord(ctx context.Context, sessionID string) (Record, error)
	DeleteSessionRecord(ctx context.Context, sessionID string) error
	SwapRefreshHash(ctx context.Context, sessionID string, current, next [32]byte) error
}

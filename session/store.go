package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/procuregov/authcore/internal"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound means the session has no live representation.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired means a record was found but its stored expiry has
	// passed. The session is deleted before this is returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshHashMismatch means the presented refresh token is not the one
	// bound to the session.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
	// ErrRecordNotFound is returned by RecordStore implementations.
	ErrRecordNotFound = errors.New("session record not found")
	// ErrRedisUnavailable wraps cache backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrRecordStoreUnavailable wraps durable backend failures.
	ErrRecordStoreUnavailable = errors.New("session record store unavailable")
	// ErrSessionIDCollision is returned when a freshly generated id already
	// exists twice in a row.
	ErrSessionIDCollision = errors.New("session id collision")
)

// Config controls key layout and lifetime of the cache record.
type Config struct {
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

// Store keeps the cache record in Redis and the durable record in a
// RecordStore, and removes both together.
type Store struct {
	redis   redis.UniversalClient
	records RecordStore
	prefix  string
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a session [Store]. cfg.TTL is the lifetime of a new
// session and should equal the refresh token lifetime.
func NewStore(rdb redis.UniversalClient, records RecordStore, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "as"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		redis:   rdb,
		records: records,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		now:     cfg.Now,
	}
}

// TTL returns the lifetime applied to new sessions.
func (s *Store) TTL() time.Duration { return s.ttl }

// canonicalID reports whether id is exactly what Create would have issued.
func canonicalID(id string) bool {
	parsed, err := internal.ParseSessionID(id)
	return err == nil && parsed == id
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Create writes a new cache record under a fresh UUIDv4 with SET NX PX. The
// caller is expected to follow up with Bind once the refresh token exists.
//
//	Performance: 1 Redis SET (2 on the astronomically unlikely id collision).
func (s *Store) Create(ctx context.Context, principalID, role, sourceIP, userAgent string) (*Session, error) {
	if principalID == "" {
		return nil, errors.New("principal id required")
	}

	now := s.now()
	sess := &Session{
		PrincipalID: principalID,
		Role:        role,
		SourceIP:    sourceIP,
		UserAgent:   userAgent,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(s.ttl).Unix(),
	}
	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		id, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		ok, err := s.redis.SetNX(ctx, s.key(id), data, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			sess.SessionID = id
			return sess, nil
		}
	}

	return nil, ErrSessionIDCollision
}

// Bind persists the durable record for sess, storing only the SHA-256 of
// refreshToken.
func (s *Store) Bind(ctx context.Context, sess *Session, refreshToken string) error {
	rec := Record{
		SessionID:   sess.SessionID,
		PrincipalID: sess.PrincipalID,
		RefreshHash: internal.HashToken(refreshToken),
		SourceIP:    sess.SourceIP,
		UserAgent:   sess.UserAgent,
		CreatedAt:   time.Unix(sess.CreatedAt, 0).UTC(),
		ExpiresAt:   time.Unix(sess.ExpiresAt, 0).UTC(),
	}
	if err := s.records.PersistSessionRecord(ctx, rec); err != nil {
		return wrapRecordErr(err)
	}
	return nil
}

// Get reads the cache record only. A miss is authoritative. An id that is
// not a canonical UUIDv4 is reported as not found without a round-trip.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !canonicalID(sessionID) {
		return nil, ErrSessionNotFound
	}
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// An unreadable record cannot authorize anything.
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil, ErrSessionNotFound
	}
	sess.SessionID = sessionID

	if sess.Expired(s.now()) {
		return nil, errors.Join(ErrSessionExpired, s.Delete(ctx, sessionID))
	}

	return sess, nil
}

// MatchesRefresh validates refreshToken against the durable record and
// returns it. Expired and mismatching sessions are deleted before the error
// is returned, so a replayed token also kills the session it targeted.
func (s *Store) MatchesRefresh(ctx context.Context, sessionID, refreshToken string) (Record, error) {
	if !canonicalID(sessionID) {
		return Record{}, ErrSessionNotFound
	}
	rec, err := s.records.FindSessionRecord(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Record{}, ErrSessionNotFound
		}
		return Record{}, wrapRecordErr(err)
	}

	if !rec.ExpiresAt.After(s.now()) {
		return Record{}, errors.Join(ErrSessionExpired, s.Delete(ctx, sessionID))
	}
	if !internal.EqualHash(rec.RefreshHash, internal.HashToken(refreshToken)) {
		return Record{}, errors.Join(ErrRefreshHashMismatch, s.Delete(ctx, sessionID))
	}

	return rec, nil
}

// RotateRefresh replaces the bound refresh token with next, provided
// presented is still the current one.
func (s *Store) RotateRefresh(ctx context.Context, sessionID, presented, next string) error {
	err := s.records.SwapRefreshHash(ctx, sessionID, internal.HashToken(presented), internal.HashToken(next))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRecordNotFound):
		return ErrSessionNotFound
	case errors.Is(err, ErrRefreshHashMismatch):
		return ErrRefreshHashMismatch
	default:
		return wrapRecordErr(err)
	}
}

// Restore re-creates a lost cache record from a valid durable record. The
// cache TTL is the durable record's remaining life. An existing cache record
// is left untouched.
func (s *Store) Restore(ctx context.Context, rec Record, role string) error {
	remaining := rec.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return ErrSessionExpired
	}

	data, err := Encode(&Session{
		PrincipalID: rec.PrincipalID,
		Role:        role,
		SourceIP:    rec.SourceIP,
		UserAgent:   rec.UserAgent,
		CreatedAt:   rec.CreatedAt.Unix(),
		ExpiresAt:   rec.ExpiresAt.Unix(),
	})
	if err != nil {
		return err
	}

	if err := s.redis.SetNX(ctx, s.key(rec.SessionID), data, remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes both representations. Deleting an absent session is not an
// error. Both removals are attempted even if the first fails.
//
//	Performance: 1 Redis DEL + 1 record store delete.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	var cacheErr, recordErr error
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		cacheErr = fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := s.records.DeleteSessionRecord(ctx, sessionID); err != nil {
		recordErr = wrapRecordErr(err)
	}
	return errors.Join(cacheErr, recordErr)
}

// Ping checks cache availability and reports latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func wrapRecordErr(err error) error {
	if errors.Is(err, ErrRecordStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRecordStoreUnavailable, err)
}

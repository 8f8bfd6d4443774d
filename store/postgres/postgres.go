// Package postgres provides session record and principal storage on
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/session"
)

// Compile-time interface assertions.
var (
	_ session.RecordStore     = (*Store)(nil)
	_ authcore.PrincipalStore = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS session_records (
	session_id    TEXT PRIMARY KEY,
	principal_id  TEXT NOT NULL,
	refresh_hash  BYTEA NOT NULL,
	source_ip     TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_records_principal
	ON session_records (principal_id, expires_at);

CREATE TABLE IF NOT EXISTS principals (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL,
	status        TEXT NOT NULL,
	password_hash TEXT NOT NULL
);
`

// Store implements session.RecordStore and authcore.PrincipalStore.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. It does not migrate.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to databaseURL, pings it and creates the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) PersistSessionRecord(ctx context.Context, rec session.Record) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO session_records (session_id, principal_id, refresh_hash, source_ip, user_agent, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (session_id) DO UPDATE SET
		principal_id = EXCLUDED.principal_id,
		refresh_hash = EXCLUDED.refresh_hash,
		source_ip = EXCLUDED.source_ip,
		user_agent = EXCLUDED.user_agent,
		created_at = EXCLUDED.created_at,
		expires_at = EXCLUDED.expires_at`,
		rec.SessionID, rec.PrincipalID, rec.RefreshHash[:], rec.SourceIP, rec.UserAgent,
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save session record: %w", err)
	}
	return nil
}

func (s *Store) FindSessionRecord(ctx context.Context, sessionID string) (session.Record, error) {
	var (
		rec     session.Record
		hash    []byte
		created time.Time
		expires time.Time
	)
	err := s.pool.QueryRow(ctx, `
	SELECT session_id, principal_id, refresh_hash, source_ip, user_agent, created_at, expires_at
	FROM session_records WHERE session_id = $1`, sessionID).
		Scan(&rec.SessionID, &rec.PrincipalID, &hash, &rec.SourceIP, &rec.UserAgent, &created, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Record{}, session.ErrRecordNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("postgres: failed to load session record: %w", err)
	}
	if len(hash) != len(rec.RefreshHash) {
		return session.Record{}, fmt.Errorf("postgres: session record %s has a %d-byte refresh hash", sessionID, len(hash))
	}
	copy(rec.RefreshHash[:], hash)
	rec.CreatedAt = created.UTC()
	rec.ExpiresAt = expires.UTC()
	return rec, nil
}

func (s *Store) DeleteSessionRecord(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM session_records WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("postgres: failed to delete session record: %w", err)
	}
	return nil
}

func (s *Store) SwapRefreshHash(ctx context.Context, sessionID string, current, next [32]byte) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE session_records SET refresh_hash = $1 WHERE session_id = $2 AND refresh_hash = $3",
		next[:], sessionID, current[:])
	if err != nil {
		return fmt.Errorf("postgres: failed to swap refresh hash: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM session_records WHERE session_id = $1)", sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: failed to swap refresh hash: %w", err)
	}
	if !exists {
		return session.ErrRecordNotFound
	}
	return session.ErrRefreshHashMismatch
}

// PutPrincipal inserts or replaces p. The email must already be normalized.
func (s *Store) PutPrincipal(ctx context.Context, p authcore.Principal) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO principals (id, email, role, status, password_hash)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email,
		role = EXCLUDED.role,
		status = EXCLUDED.status,
		password_hash = EXCLUDED.password_hash`,
		p.ID, p.Email, string(p.Role), string(p.Status), p.PasswordHash)
	if err != nil {
		return fmt.Errorf("postgres: failed to save principal: %w", err)
	}
	return nil
}

func (s *Store) FindPrincipalByID(ctx context.Context, id string) (authcore.Principal, error) {
	return s.findPrincipal(ctx, "SELECT id, email, role, status, password_hash FROM principals WHERE id = $1", id)
}

func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (authcore.Principal, error) {
	return s.findPrincipal(ctx, "SELECT id, email, role, status, password_hash FROM principals WHERE email = $1", email)
}

func (s *Store) findPrincipal(ctx context.Context, query, arg string) (authcore.Principal, error) {
	var (
		p            authcore.Principal
		role, status string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(&p.ID, &p.Email, &role, &status, &p.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.Principal{}, authcore.ErrPrincipalNotFound
	}
	if err != nil {
		return authcore.Principal{}, fmt.Errorf("postgres: failed to load principal: %w", err)
	}
	p.Role = authcore.Role(role)
	p.Status = authcore.PrincipalStatus(status)
	return p, nil
}

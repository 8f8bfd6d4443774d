// Package sqlstore implements session.RecordStore and authcore.PrincipalStore
// over database/sql. Driver specifics live in a Dialect; the sqlite and mysql
// packages supply one each.
package sqlstore

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/session"
)

// Dialect carries the statements that differ between databases. All
// statements use "?" placeholders.
type Dialect struct {
	// Name prefixes error messages, e.g. "sqlite".
	Name string
	// Schema is executed statement by statement by Migrate.
	Schema []string
	// UpsertRecord inserts or replaces a session record. Arguments:
	// session_id, principal_id, refresh_hash, source_ip, user_agent,
	// created_at_ms, expires_at_ms.
	UpsertRecord string
	// UpsertPrincipal inserts or replaces a principal. Arguments: id, email,
	// role, status, password_hash.
	UpsertPrincipal string
}

// Store is a database/sql backed record and principal store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db. Call Migrate before first use on an empty database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: failed to create schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PersistSessionRecord inserts rec or replaces the record with the same id.
func (s *Store) PersistSessionRecord(ctx context.Context, rec session.Record) error {
	_, err := s.db.ExecContext(ctx, s.dialect.UpsertRecord,
		rec.SessionID,
		rec.PrincipalID,
		rec.RefreshHash[:],
		rec.SourceIP,
		rec.UserAgent,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to save session record: %w", s.dialect.Name, err)
	}
	return nil
}

// FindSessionRecord returns session.ErrRecordNotFound for unknown ids.
func (s *Store) FindSessionRecord(ctx context.Context, sessionID string) (session.Record, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT session_id, principal_id, refresh_hash, source_ip, user_agent, created_at_ms, expires_at_ms
	FROM session_records
	WHERE session_id = ?`, sessionID)

	var (
		rec                session.Record
		hash               []byte
		createdMs, expires int64
	)
	err := row.Scan(&rec.SessionID, &rec.PrincipalID, &hash, &rec.SourceIP, &rec.UserAgent, &createdMs, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, session.ErrRecordNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("%s: failed to load session record: %w", s.dialect.Name, err)
	}
	if len(hash) != len(rec.RefreshHash) {
		return session.Record{}, fmt.Errorf("%s: session record %s has a %d-byte refresh hash", s.dialect.Name, sessionID, len(hash))
	}
	copy(rec.RefreshHash[:], hash)
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	rec.ExpiresAt = time.UnixMilli(expires).UTC()
	return rec, nil
}

// DeleteSessionRecord removes the record. Unknown ids are not an error.
func (s *Store) DeleteSessionRecord(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_records WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("%s: failed to delete session record: %w", s.dialect.Name, err)
	}
	return nil
}

// SwapRefreshHash replaces current with next in a single conditional UPDATE.
func (s *Store) SwapRefreshHash(ctx context.Context, sessionID string, current, next [32]byte) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE session_records SET refresh_hash = ? WHERE session_id = ? AND refresh_hash = ?",
		next[:], sessionID, current[:],
	)
	if err != nil {
		return fmt.Errorf("%s: failed to swap refresh hash: %w", s.dialect.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to swap refresh hash: %w", s.dialect.Name, err)
	}
	if n == 1 {
		return nil
	}

	// Zero rows: the record is gone, holds another hash, or (MySQL) already
	// held next so nothing changed.
	rec, err := s.FindSessionRecord(ctx, sessionID)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(rec.RefreshHash[:], next[:]) == 1 &&
		subtle.ConstantTimeCompare(current[:], next[:]) == 1 {
		return nil
	}
	return session.ErrRefreshHashMismatch
}

// PutPrincipal inserts or replaces p. The email must already be normalized.
func (s *Store) PutPrincipal(ctx context.Context, p authcore.Principal) error {
	_, err := s.db.ExecContext(ctx, s.dialect.UpsertPrincipal,
		p.ID, p.Email, string(p.Role), string(p.Status), p.PasswordHash)
	if err != nil {
		return fmt.Errorf("%s: failed to save principal: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Store) FindPrincipalByID(ctx context.Context, id string) (authcore.Principal, error) {
	return s.findPrincipal(ctx, "id", id)
}

func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (authcore.Principal, error) {
	return s.findPrincipal(ctx, "email", email)
}

func (s *Store) findPrincipal(ctx context.Context, column, value string) (authcore.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, role, status, password_hash FROM principals WHERE "+column+" = ?", value)

	var (
		p            authcore.Principal
		role, status string
	)
	err := row.Scan(&p.ID, &p.Email, &role, &status, &p.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.Principal{}, authcore.ErrPrincipalNotFound
	}
	if err != nil {
		return authcore.Principal{}, fmt.Errorf("%s: failed to load principal: %w", s.dialect.Name, err)
	}
	p.Role = authcore.Role(role)
	p.Status = authcore.PrincipalStatus(status)
	return p, nil
}

// Package sqlite provides session record and principal storage on SQLite.
// It uses the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procuregov/authcore/store/sqlstore"
	_ "modernc.org/sqlite"
)

var dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS session_records (
			session_id    TEXT PRIMARY KEY,
			principal_id  TEXT NOT NULL,
			refresh_hash  BLOB NOT NULL,
			source_ip     TEXT NOT NULL DEFAULT '',
			user_agent    TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			expires_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_records_principal
			ON session_records (principal_id, expires_at_ms)`,
		`CREATE TABLE IF NOT EXISTS principals (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			role          TEXT NOT NULL,
			status        TEXT NOT NULL,
			password_hash TEXT NOT NULL
		)`,
	},
	UpsertRecord: `
	INSERT INTO session_records (session_id, principal_id, refresh_hash, source_ip, user_agent, created_at_ms, expires_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (session_id) DO UPDATE SET
		principal_id = excluded.principal_id,
		refresh_hash = excluded.refresh_hash,
		source_ip = excluded.source_ip,
		user_agent = excluded.user_agent,
		created_at_ms = excluded.created_at_ms,
		expires_at_ms = excluded.expires_at_ms`,
	UpsertPrincipal: `
	INSERT INTO principals (id, email, role, status, password_hash)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		email = excluded.email,
		role = excluded.role,
		status = excluded.status,
		password_hash = excluded.password_hash`,
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	// In-memory databases are per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	s := sqlstore.New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Package mysql provides session record and principal storage on MySQL.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	drv "github.com/go-sql-driver/mysql"
	"github.com/procuregov/authcore/store/sqlstore"
)

var dialect = sqlstore.Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS session_records (
			session_id    VARCHAR(64) PRIMARY KEY,
			principal_id  VARCHAR(255) NOT NULL,
			refresh_hash  VARBINARY(32) NOT NULL,
			source_ip     VARCHAR(45) NOT NULL DEFAULT '',
			user_agent    VARCHAR(512) NOT NULL DEFAULT '',
			created_at_ms BIGINT NOT NULL,
			expires_at_ms BIGINT NOT NULL,
			INDEX idx_session_records_principal (principal_id, expires_at_ms)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS principals (
			id            VARCHAR(255) PRIMARY KEY,
			email         VARCHAR(320) NOT NULL UNIQUE,
			role          VARCHAR(32) NOT NULL,
			status        VARCHAR(32) NOT NULL,
			password_hash VARCHAR(255) NOT NULL
		) ENGINE=InnoDB`,
	},
	UpsertRecord: `
	INSERT INTO session_records (session_id, principal_id, refresh_hash, source_ip, user_agent, created_at_ms, expires_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		principal_id = VALUES(principal_id),
		refresh_hash = VALUES(refresh_hash),
		source_ip = VALUES(source_ip),
		user_agent = VALUES(user_agent),
		created_at_ms = VALUES(created_at_ms),
		expires_at_ms = VALUES(expires_at_ms)`,
	UpsertPrincipal: `
	INSERT INTO principals (id, email, role, status, password_hash)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		email = VALUES(email),
		role = VALUES(role),
		status = VALUES(status),
		password_hash = VALUES(password_hash)`,
}

// New migrates db and wraps it.
func New(ctx context.Context, db *sql.DB) (*sqlstore.Store, error) {
	s := sqlstore.New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects using a DSN of the form user:password@tcp(host:port)/database.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	cfg, err := drv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: invalid DSN: %w", err)
	}
	connector, err := drv.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

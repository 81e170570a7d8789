// Package wsv implements C7 (Temporary WSV): a transactional view over the
// Postgres-backed world state, with nested savepoints and the
// per-command-kind execution primitives the stateful validator (C8) drives.
package wsv

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Store owns the pooled connection to the relational world-state backend
// fixed by §6: tables for peer, role, domain, asset, account,
// account_has_*, signatory, plus the secondary-index tables.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Config holds the Postgres connection parameters (the pg_opt config key
// of §6).
type Config struct {
	ConnString     string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdle    time.Duration
	ConnMaxLife    time.Duration
}

// NewStore opens and pings a pooled connection to the world-state backend.
func NewStore(cfg Config, logger *log.Logger) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("wsv: pg_opt connection string is empty")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[wsv] ", log.LstdFlags)
	}

	db, err := sql.Open("postgres", cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("wsv: open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("wsv: ping postgres: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pooled *sql.DB for migrations and permanent-state
// queries outside a temporary transaction (e.g. the genesis bootstrap and
// the synchronizer's committed-height queries).
func (s *Store) DB() *sql.DB {
	return s.db
}

// queryer is satisfied by both *sql.DB and *sql.Tx, letting the read
// queries in queries.go run unmodified whether called against permanent
// state or inside a TemporaryWSV transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Schema is the DDL for the world-state backend fixed by §6. It is
// idempotent so it can run at startup without a dedicated migration
// runner.
const Schema = `
CREATE TABLE IF NOT EXISTS domain (
	domain_id    TEXT PRIMARY KEY,
	default_role TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS role (
	role_id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS role_has_permissions (
	role_id    TEXT NOT NULL REFERENCES role(role_id),
	permission TEXT NOT NULL,
	PRIMARY KEY (role_id, permission)
);

CREATE TABLE IF NOT EXISTS asset (
	asset_id  TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domain(domain_id),
	precision INT NOT NULL
);

CREATE TABLE IF NOT EXISTS account (
	account_id TEXT PRIMARY KEY,
	domain_id  TEXT NOT NULL REFERENCES domain(domain_id),
	quorum     INT NOT NULL DEFAULT 1,
	data       JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS signatory (
	public_key BYTEA PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS account_has_signatory (
	account_id TEXT NOT NULL REFERENCES account(account_id),
	public_key BYTEA NOT NULL REFERENCES signatory(public_key),
	PRIMARY KEY (account_id, public_key)
);

CREATE TABLE IF NOT EXISTS account_has_roles (
	account_id TEXT NOT NULL REFERENCES account(account_id),
	role_id    TEXT NOT NULL REFERENCES role(role_id),
	PRIMARY KEY (account_id, role_id)
);

CREATE TABLE IF NOT EXISTS account_has_grantable_permissions (
	permittee_account_id TEXT NOT NULL REFERENCES account(account_id),
	account_id           TEXT NOT NULL REFERENCES account(account_id),
	permission           TEXT NOT NULL,
	PRIMARY KEY (permittee_account_id, account_id, permission)
);

CREATE TABLE IF NOT EXISTS account_has_asset_balance (
	account_id TEXT NOT NULL REFERENCES account(account_id),
	asset_id   TEXT NOT NULL REFERENCES asset(asset_id),
	amount     NUMERIC NOT NULL DEFAULT 0,
	PRIMARY KEY (account_id, asset_id)
);

CREATE TABLE IF NOT EXISTS peer (
	public_key      BYTEA PRIMARY KEY,
	network_address TEXT NOT NULL,
	ordinal         SERIAL
);

-- Secondary indexes (§6 Persisted state layout (b)), populated in the
-- same transaction as block application (§4.14).
CREATE TABLE IF NOT EXISTS height_by_hash (
	tx_hash BYTEA PRIMARY KEY,
	height  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS index_by_creator_height (
	account_id TEXT NOT NULL,
	height     BIGINT NOT NULL,
	PRIMARY KEY (account_id, height)
);

CREATE TABLE IF NOT EXISTS index_by_id_height_asset (
	account_id TEXT NOT NULL,
	height     BIGINT NOT NULL,
	asset_id   TEXT NOT NULL,
	tx_index   INT NOT NULL,
	PRIMARY KEY (account_id, height, asset_id, tx_index)
);
`

// EnsureSchema applies Schema against the backend.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("wsv: ensure schema: %w", err)
	}
	return nil
}

// dropSchema is Schema's table list in reverse dependency order, used
// only by Reset.
const dropSchema = `
DROP TABLE IF EXISTS index_by_id_height_asset;
DROP TABLE IF EXISTS index_by_creator_height;
DROP TABLE IF EXISTS height_by_hash;
DROP TABLE IF EXISTS peer;
DROP TABLE IF EXISTS account_has_asset_balance;
DROP TABLE IF EXISTS account_has_grantable_permissions;
DROP TABLE IF EXISTS account_has_roles;
DROP TABLE IF EXISTS account_has_signatory;
DROP TABLE IF EXISTS signatory;
DROP TABLE IF EXISTS account;
DROP TABLE IF EXISTS asset;
DROP TABLE IF EXISTS role_has_permissions;
DROP TABLE IF EXISTS role;
DROP TABLE IF EXISTS domain;
`

// Reset drops every table in Schema and recreates them empty. This backs
// the CLI's --overwrite_ledger flag (§6): a fresh ledger needs the
// relational world state wiped, not just the block files.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, dropSchema); err != nil {
		return fmt.Errorf("wsv: drop schema: %w", err)
	}
	return s.EnsureSchema(ctx)
}

// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package database provides DuckDB-backed persistence for users,
// events and interaction history, and adapts it to the matching
// engine's DataProvider interface.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"github.com/kumele/matchengine/internal/logging"
)

// Config holds database configuration.
type Config struct {
	// Path is the DuckDB file path; empty means in-memory.
	Path string `koanf:"path"`

	// MaxOpenConns caps the connection pool. Default: 4
	MaxOpenConns int `koanf:"max_open_conns"`

	// ConnTimeout bounds the initial connectivity check. Default: 10s
	ConnTimeout time.Duration `koanf:"conn_timeout"`
}

// DefaultConfig returns production database defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "matchengine.db",
		MaxOpenConns: 4,
		ConnTimeout:  10 * time.Second,
	}
}

// DB wraps the sql handle and owns schema management.
type DB struct {
	sql *sql.DB
}

// Open connects to DuckDB and applies the schema.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	handle, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		handle.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.ConnTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := handle.PingContext(pingCtx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	db := &DB{sql: handle}
	if err := db.migrate(ctx); err != nil {
		_ = handle.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("database ready")
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping verifies connectivity, for health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// migrate applies the schema idempotently.
func (db *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR PRIMARY KEY,
			latitude DOUBLE,
			longitude DOUBLE,
			tier VARCHAR NOT NULL DEFAULT 'none',
			age_bracket VARCHAR,
			gender VARCHAR,
			ad_clicks INTEGER NOT NULL DEFAULT 0,
			ad_conversions INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_hobbies (
			user_id VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			affinity DOUBLE NOT NULL DEFAULT 0.5
		)`,
		`CREATE TABLE IF NOT EXISTS user_blog_topics (
			user_id VARCHAR NOT NULL,
			topic VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_interactions (
			user_id VARCHAR NOT NULL,
			event_id VARCHAR NOT NULL,
			type VARCHAR NOT NULL,
			category VARCHAR,
			occurred_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL,
			category VARCHAR NOT NULL,
			latitude DOUBLE,
			longitude DOUBLE,
			host_id VARCHAR NOT NULL,
			price DOUBLE NOT NULL DEFAULT 0,
			status VARCHAR NOT NULL DEFAULT 'active',
			starts_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			attendee_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS event_tags (
			event_id VARCHAR NOT NULL,
			tag VARCHAR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user ON user_interactions (user_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status_start ON events (status, starts_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

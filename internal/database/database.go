// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package database owns the relational store: reference lookups used by the
// market pipeline, freshness-gated price writes, and the community goal
// snapshot.
//
// Two drivers are supported. DuckDB (github.com/duckdb/duckdb-go/v2) is the
// default and is what the tests run against in memory; PostgreSQL
// (github.com/lib/pq) is used in production deployments that share the
// database with the API layer. All SQL is written to run unchanged on both.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/logging"
)

// DB wraps the connection pool.
type DB struct {
	conn   *sql.DB
	cfg    *config.DatabaseConfig
	driver string
}

// Open connects to the configured store and creates missing tables.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	connStr, err := connectionString(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	db := &DB{conn: conn, cfg: cfg, driver: cfg.Driver}
	db.configureConnectionPool()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	if err := db.createTables(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("driver", cfg.Driver).Msg("Database ready")
	return db, nil
}

func connectionString(cfg *config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "duckdb":
		if cfg.DSN != "" && cfg.DSN != ":memory:" {
			if dir := filepath.Dir(cfg.DSN); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return "", fmt.Errorf("failed to create database directory %s: %w", dir, err)
				}
			}
		}
		return fmt.Sprintf("%s?access_mode=read_write&threads=%d", cfg.DSN, runtime.NumCPU()), nil
	case "postgres":
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (db *DB) configureConnectionPool() {
	maxOpen := db.cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = runtime.NumCPU()
	}
	db.conn.SetMaxOpenConns(maxOpen)
	db.conn.SetMaxIdleConns(db.cfg.MaxIdleConns)
	if db.cfg.ConnMaxLifetime > 0 {
		db.conn.SetConnMaxLifetime(db.cfg.ConnMaxLifetime)
	}
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Ping checks the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollbackQuietly is deferred after BeginTx; it is a no-op once committed.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logging.Warn().Err(err).Msg("Failed to roll back transaction")
	}
}

// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package database

import (
	"context"
	"fmt"
	"time"
)

// Reference tables are normally filled by the catalog importers; creating
// them here lets a fresh database start without them.
var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS systems (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		x DOUBLE PRECISION NOT NULL DEFAULT 0,
		y DOUBLE PRECISION NOT NULL DEFAULT 0,
		z DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS stations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		system_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commodities (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		internal_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commodities_prices (
		station_id BIGINT NOT NULL,
		commodity_id BIGINT NOT NULL,
		supply BIGINT NOT NULL,
		demand BIGINT NOT NULL,
		buy_price BIGINT NOT NULL,
		sell_price BIGINT NOT NULL,
		collected_at BIGINT NOT NULL,
		PRIMARY KEY (station_id, commodity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS community_goal_status (
		id BIGINT PRIMARY KEY,
		last_update TIMESTAMP NOT NULL,
		is_finished BOOLEAN NOT NULL,
		current_tier INTEGER NOT NULL,
		title TEXT NOT NULL
	)`,
}

var indexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_systems_name ON systems (name)`,
	`CREATE INDEX IF NOT EXISTS idx_stations_system_name ON stations (system_id, name)`,
	`CREATE INDEX IF NOT EXISTS idx_commodities_internal_name ON commodities (internal_name)`,
}

func schemaContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}

func (db *DB) createTables(parent context.Context) error {
	ctx, cancel := schemaContext(parent)
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, query := range indexQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

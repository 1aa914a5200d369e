// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/edcompanion/internal/models"
)

// SaveSystem inserts or replaces a system row.
func (db *DB) SaveSystem(ctx context.Context, s models.System) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO systems (id, name, x, y, z) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, x = EXCLUDED.x, y = EXCLUDED.y, z = EXCLUDED.z`,
		s.ID, s.Name, s.X, s.Y, s.Z)
	if err != nil {
		return fmt.Errorf("failed to save system %d: %w", s.ID, err)
	}
	return nil
}

// SaveStation inserts or replaces a station row.
func (db *DB) SaveStation(ctx context.Context, s models.Station) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO stations (id, name, system_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, system_id = EXCLUDED.system_id`,
		s.ID, s.Name, s.SystemID)
	if err != nil {
		return fmt.Errorf("failed to save station %d: %w", s.ID, err)
	}
	return nil
}

// SaveCommodity inserts or replaces a commodity row.
func (db *DB) SaveCommodity(ctx context.Context, c models.Commodity) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO commodities (id, name, internal_name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, internal_name = EXCLUDED.internal_name`,
		c.ID, c.Name, c.InternalName)
	if err != nil {
		return fmt.Errorf("failed to save commodity %d: %w", c.ID, err)
	}
	return nil
}

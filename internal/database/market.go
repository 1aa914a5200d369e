// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/models"
)

// ErrCommodityNotFound means the feed named a commodity the catalog lacks.
var ErrCommodityNotFound = errors.New("commodity not recognized")

// Resolution is the outcome of a station lookup.
type Resolution int

const (
	// NotFound means no station matched.
	NotFound Resolution = iota
	// Found means exactly one station matched.
	Found
	// Ambiguous means more than one station matched; nothing may be written.
	Ambiguous
)

func (r Resolution) String() string {
	switch r {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// StationResolution carries the station when Outcome is Found.
type StationResolution struct {
	Outcome Resolution
	Station models.Station
}

// ApplyResult is the outcome of a price write.
type ApplyResult int

const (
	// Applied means the row was created or overwritten.
	Applied ApplyResult = iota
	// Stale means the stored row is as new or newer; nothing changed.
	Stale
)

func (r ApplyResult) String() string {
	if r == Applied {
		return "applied"
	}
	return "stale"
}

// MarketStore is what the feed handler needs from the store for one message.
type MarketStore interface {
	ResolveStation(ctx context.Context, systemName, stationName string) (StationResolution, error)
	ResolveCommodity(ctx context.Context, internalName string) (models.Commodity, error)
	ApplyPrice(ctx context.Context, update models.PriceUpdate) (ApplyResult, error)
}

// maxConflictRetries bounds re-evaluation of a price write after a
// write-write conflict or a lost first-insert race with another session.
const maxConflictRetries = 5

// WithMarketSession pins one pooled connection for the duration of fn and
// releases it afterwards.
func (db *DB) WithMarketSession(ctx context.Context, fn func(MarketStore) error) error {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer closeQuietly(conn)
	return fn(&marketSession{conn: conn})
}

type marketSession struct {
	conn *sql.Conn
}

// ResolveStation matches stations named stationName inside every system
// named systemName. Only a single match across all candidate systems
// resolves; duplicates fail closed.
func (s *marketSession) ResolveStation(ctx context.Context, systemName, stationName string) (StationResolution, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT st.id, st.name, st.system_id
		FROM stations st
		JOIN systems sy ON sy.id = st.system_id
		WHERE sy.name = $1 AND st.name = $2
		LIMIT 2`, systemName, stationName)
	if err != nil {
		return StationResolution{}, fmt.Errorf("failed to resolve station %q in %q: %w", stationName, systemName, err)
	}
	defer closeQuietly(rows)

	var matches []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.SystemID); err != nil {
			return StationResolution{}, fmt.Errorf("failed to scan station: %w", err)
		}
		matches = append(matches, st)
	}
	if err := rows.Err(); err != nil {
		return StationResolution{}, fmt.Errorf("failed to iterate stations: %w", err)
	}

	switch len(matches) {
	case 0:
		return StationResolution{Outcome: NotFound}, nil
	case 1:
		return StationResolution{Outcome: Found, Station: matches[0]}, nil
	default:
		return StationResolution{Outcome: Ambiguous}, nil
	}
}

// ResolveCommodity looks a commodity up by its feed identifier.
func (s *marketSession) ResolveCommodity(ctx context.Context, internalName string) (models.Commodity, error) {
	var c models.Commodity
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, internal_name FROM commodities WHERE internal_name = $1 LIMIT 1`,
		internalName).Scan(&c.ID, &c.Name, &c.InternalName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Commodity{}, fmt.Errorf("%w: %s", ErrCommodityNotFound, internalName)
	}
	if err != nil {
		return models.Commodity{}, fmt.Errorf("failed to resolve commodity %q: %w", internalName, err)
	}
	return c, nil
}

// ApplyPrice writes update if its timestamp is strictly newer than the
// stored collected_at, or if no row exists yet. Exactly one row is touched.
func (s *marketSession) ApplyPrice(ctx context.Context, update models.PriceUpdate) (ApplyResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err := s.applyPriceOnce(ctx, update)
		if err == nil || !isTransactionConflict(err) {
			return result, err
		}
		lastErr = err
		logging.Debug().Err(err).Int("attempt", attempt+1).
			Int64("station_id", update.StationID).
			Int64("commodity_id", update.CommodityID).
			Msg("Price write conflicted, re-evaluating")
	}
	return Stale, fmt.Errorf("price write kept conflicting: %w", lastErr)
}

func (s *marketSession) applyPriceOnce(ctx context.Context, u models.PriceUpdate) (ApplyResult, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return Stale, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var stored int64
	err = tx.QueryRowContext(ctx,
		`SELECT collected_at FROM commodities_prices WHERE station_id = $1 AND commodity_id = $2`,
		u.StationID, u.CommodityID).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO commodities_prices
				(station_id, commodity_id, supply, demand, buy_price, sell_price, collected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (station_id, commodity_id) DO NOTHING`,
			u.StationID, u.CommodityID, u.Supply, u.Demand, u.BuyPrice, u.SellPrice, u.Timestamp)
		if err != nil {
			return Stale, fmt.Errorf("failed to insert price: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			if err := tx.Commit(); err != nil {
				return Stale, fmt.Errorf("failed to commit price: %w", err)
			}
			return Applied, nil
		}
		// PostgreSQL: another writer created the row first; compare against
		// it below. DuckDB instead fails the insert with a duplicate key
		// error, which ApplyPrice retries from the read.
	case err != nil:
		return Stale, fmt.Errorf("failed to read price: %w", err)
	case u.Timestamp <= stored:
		return Stale, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE commodities_prices
		SET supply = $3, demand = $4, buy_price = $5, sell_price = $6, collected_at = $7
		WHERE station_id = $1 AND commodity_id = $2 AND collected_at < $7`,
		u.StationID, u.CommodityID, u.Supply, u.Demand, u.BuyPrice, u.SellPrice, u.Timestamp)
	if err != nil {
		return Stale, fmt.Errorf("failed to update price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Stale, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return Stale, nil
	}
	if err := tx.Commit(); err != nil {
		return Stale, fmt.Errorf("failed to commit price: %w", err)
	}
	return Applied, nil
}

// GetPrice returns the stored row for a key; ok is false when none exists.
func (db *DB) GetPrice(ctx context.Context, stationID, commodityID int64) (models.CommodityPrice, bool, error) {
	p := models.CommodityPrice{StationID: stationID, CommodityID: commodityID}
	err := db.conn.QueryRowContext(ctx, `
		SELECT supply, demand, buy_price, sell_price, collected_at
		FROM commodities_prices WHERE station_id = $1 AND commodity_id = $2`,
		stationID, commodityID).Scan(&p.Supply, &p.Demand, &p.BuyPrice, &p.SellPrice, &p.CollectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CommodityPrice{}, false, nil
	}
	if err != nil {
		return models.CommodityPrice{}, false, fmt.Errorf("failed to read price: %w", err)
	}
	return p, true, nil
}

// CountPrices returns the number of price rows.
func (db *DB) CountPrices(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM commodities_prices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return n, nil
}

// isTransactionConflict reports failures that a fresh read can resolve:
// DuckDB optimistic concurrency aborts and a primary key collision when
// two sessions insert the first row for the same key.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range conflictMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var conflictMarkers = []string{
	"transaction conflict",
	"conflict on update",
	"duplicate key",
	"violates primary key",
}

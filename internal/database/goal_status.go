// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/edcompanion/internal/models"
)

// StoreSummary counts what StoreGoalStatuses did with each incoming row.
type StoreSummary struct {
	Bootstrap bool
	Inserted  int
	Updated   int
	Rejected  int
}

// RatchetAllows reports whether next may overwrite prev. The tier never
// decreases and a finished goal stays finished.
func RatchetAllows(prev, next models.CommunityGoalStatus) bool {
	if next.CurrentTier < prev.CurrentTier {
		return false
	}
	if prev.IsFinished && !next.IsFinished {
		return false
	}
	return true
}

// LoadGoalStatuses returns every persisted goal snapshot row.
func (db *DB) LoadGoalStatuses(ctx context.Context) ([]models.CommunityGoalStatus, error) {
	return loadGoalStatuses(ctx, db.conn)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadGoalStatuses(ctx context.Context, q queryer) ([]models.CommunityGoalStatus, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, last_update, is_finished, current_tier, title FROM community_goal_status ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal status: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.CommunityGoalStatus
	for rows.Next() {
		var st models.CommunityGoalStatus
		if err := rows.Scan(&st.ID, &st.LastUpdate, &st.IsFinished, &st.CurrentTier, &st.Title); err != nil {
			return nil, fmt.Errorf("failed to scan goal status: %w", err)
		}
		st.LastUpdate = st.LastUpdate.UTC()
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate goal status: %w", err)
	}
	return out, nil
}

// StoreGoalStatuses persists latest in one transaction. With an empty table
// every row is inserted as-is. Otherwise new ids are inserted and known ids
// are overwritten only when RatchetAllows. Any failure rolls back the whole
// batch.
func (db *DB) StoreGoalStatuses(ctx context.Context, latest []models.CommunityGoalStatus) (StoreSummary, error) {
	var summary StoreSummary

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	previous, err := loadGoalStatuses(ctx, tx)
	if err != nil {
		return summary, err
	}
	summary.Bootstrap = len(previous) == 0

	known := make(map[int64]models.CommunityGoalStatus, len(previous))
	for _, st := range previous {
		known[st.ID] = st
	}

	for _, next := range latest {
		next.LastUpdate = normalizeTime(next.LastUpdate)

		prev, exists := known[next.ID]
		switch {
		case !exists:
			if err := insertGoalStatus(ctx, tx, next); err != nil {
				return StoreSummary{}, err
			}
			summary.Inserted++
		case !RatchetAllows(prev, next):
			summary.Rejected++
			continue
		default:
			if err := updateGoalStatus(ctx, tx, next); err != nil {
				return StoreSummary{}, err
			}
			summary.Updated++
		}
		known[next.ID] = next
	}

	if err := tx.Commit(); err != nil {
		return StoreSummary{}, fmt.Errorf("failed to commit goal status: %w", err)
	}
	return summary, nil
}

func insertGoalStatus(ctx context.Context, tx *sql.Tx, st models.CommunityGoalStatus) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO community_goal_status (id, last_update, is_finished, current_tier, title)
		VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.LastUpdate, st.IsFinished, st.CurrentTier, st.Title)
	if err != nil {
		return fmt.Errorf("failed to insert goal status %d: %w", st.ID, err)
	}
	return nil
}

func updateGoalStatus(ctx context.Context, tx *sql.Tx, st models.CommunityGoalStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE community_goal_status
		SET last_update = $2, is_finished = $3, current_tier = $4, title = $5
		WHERE id = $1`,
		st.ID, st.LastUpdate, st.IsFinished, st.CurrentTier, st.Title)
	if err != nil {
		return fmt.Errorf("failed to update goal status %d: %w", st.ID, err)
	}
	return nil
}

// normalizeTime stores UTC at second precision so both drivers round-trip
// the same value.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC().Truncate(time.Second)
	}
	return t.UTC().Truncate(time.Second)
}

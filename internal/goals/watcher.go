// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package goals detects community goal transitions and drives one watcher
// pass: fetch, compare, notify, persist.
package goals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/edcompanion/internal/database"
	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/models"
	"github.com/tomtom215/edcompanion/internal/notify"
)

// Source fetches the current goals snapshot.
type Source interface {
	FetchCommunityGoals(ctx context.Context) ([]models.CommunityGoal, error)
}

// StatusStore persists goal snapshots.
type StatusStore interface {
	LoadGoalStatuses(ctx context.Context) ([]models.CommunityGoalStatus, error)
	StoreGoalStatuses(ctx context.Context, latest []models.CommunityGoalStatus) (database.StoreSummary, error)
}

// Notifier delivers one transition, best effort.
type Notifier interface {
	Send(ctx context.Context, kind, title string, payload notify.Payload) bool
}

// PassResult summarizes one RunOnce call.
type PassResult struct {
	CorrelationID string
	Goals         int
	Bootstrap     bool
	Transitions   []Transition
	Notified      int
	NotifyFailed  int
	Stored        database.StoreSummary
}

// Watcher runs goal passes. Passes must not overlap.
type Watcher struct {
	source   Source
	store    StatusStore
	notifier Notifier
	now      func() time.Time
}

// NewWatcher wires a watcher.
func NewWatcher(source Source, store StatusStore, notifier Notifier) *Watcher {
	return &Watcher{
		source:   source,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// RunOnce performs one pass. A fetch failure aborts before anything is
// notified or stored. When nothing was stored before, the snapshot is
// saved without notifications. Notification failures never fail the pass.
func (w *Watcher) RunOnce(ctx context.Context) (PassResult, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	result := PassResult{CorrelationID: logging.CorrelationIDFromContext(ctx)}

	log.Info().Msg("Checking for community goal changes")

	latest, err := w.source.FetchCommunityGoals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Community goal fetch failed, pass aborted")
		return result, fmt.Errorf("fetch community goals: %w", err)
	}
	result.Goals = len(latest)

	previous, err := w.store.LoadGoalStatuses(ctx)
	if err != nil {
		return result, fmt.Errorf("load goal status: %w", err)
	}

	snapshot := models.Statuses(latest)

	if len(previous) == 0 {
		result.Bootstrap = true
		result.Stored, err = w.store.StoreGoalStatuses(ctx, snapshot)
		if err != nil {
			return result, fmt.Errorf("store goal status: %w", err)
		}
		log.Info().Int("goals", len(snapshot)).Msg("No previous goal status, snapshot stored without notifications")
		return result, nil
	}

	result.Transitions = Classify(previous, latest)
	now := w.now()
	for i := range result.Transitions {
		tr := &result.Transitions[i]
		logTransition(ctx, tr)
		if w.notifier.Send(ctx, string(tr.Kind), tr.Goal.Title, notify.NewPayload(&tr.Goal, now)) {
			result.Notified++
		} else {
			result.NotifyFailed++
		}
	}

	result.Stored, err = w.store.StoreGoalStatuses(ctx, snapshot)
	if err != nil {
		return result, fmt.Errorf("store goal status: %w", err)
	}

	log.Info().
		Int("goals", result.Goals).
		Int("transitions", len(result.Transitions)).
		Int("notified", result.Notified).
		Int("notify_failed", result.NotifyFailed).
		Int("rejected", result.Stored.Rejected).
		Msg("Goal pass complete")
	return result, nil
}

func logTransition(ctx context.Context, tr *Transition) {
	event := logging.Ctx(ctx).Info().
		Str("kind", string(tr.Kind)).
		Int64("goal_id", tr.Goal.ID).
		Str("goal", tr.Goal.Title).
		Int("tier", tr.Goal.CurrentTier)
	if tr.Previous != nil {
		event = event.Int("previous_tier", tr.Previous.CurrentTier)
	}
	event.Msg("Community goal transition")
}

// Loop runs a Watcher every interval until its context ends. It implements
// suture.Service. Failed passes are logged and retried on the next tick.
type Loop struct {
	watcher  *Watcher
	interval time.Duration
}

// NewLoop returns a loop over w.
func NewLoop(w *Watcher, interval time.Duration) *Loop {
	return &Loop{watcher: w, interval: interval}
}

// Serve runs passes back to back, never overlapping.
func (l *Loop) Serve(ctx context.Context) error {
	if l.interval <= 0 {
		return errors.New("goal loop interval must be positive")
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if _, err := l.watcher.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Dur("retry_in", l.interval).Msg("Goal pass failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Loop) String() string {
	return "community-goal-watcher"
}

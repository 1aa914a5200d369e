// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package goals

import (
	"github.com/tomtom215/edcompanion/internal/models"
)

// Kind is a goal transition type. Its value doubles as the notification
// topic.
type Kind string

const (
	NewGoal      Kind = "new_goal"
	FinishedGoal Kind = "finished_goal"
	NewTier      Kind = "new_tier"
)

// Transition is one change worth notifying about.
type Transition struct {
	Kind Kind
	Goal models.CommunityGoal
	// Previous is nil for NewGoal.
	Previous *models.CommunityGoalStatus
}

// Classify compares the latest snapshot with the stored one. A goal emits at
// most one transition: finishing wins over a tier increase, and a tier
// increase only counts while the goal is ongoing. Tier decreases and
// repeated observations emit nothing.
func Classify(previous []models.CommunityGoalStatus, latest []models.CommunityGoal) []Transition {
	known := make(map[int64]*models.CommunityGoalStatus, len(previous))
	for i := range previous {
		known[previous[i].ID] = &previous[i]
	}

	var out []Transition
	for i := range latest {
		goal := latest[i]
		prev, ok := known[goal.ID]
		switch {
		case !ok:
			out = append(out, Transition{Kind: NewGoal, Goal: goal})
		case goal.IsFinished() && !prev.IsFinished:
			out = append(out, Transition{Kind: FinishedGoal, Goal: goal, Previous: prev})
		case goal.CurrentTier > prev.CurrentTier && !goal.IsFinished():
			out = append(out, Transition{Kind: NewTier, Goal: goal, Previous: prev})
		}
	}
	return out
}

// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package models

import "time"

// CommunityGoalStatus is the persisted snapshot of one goal, keyed by the
// externally assigned goal id.
type CommunityGoalStatus struct {
	ID          int64     `json:"id"`
	LastUpdate  time.Time `json:"last_update"`
	IsFinished  bool      `json:"is_finished"`
	CurrentTier int       `json:"current_tier"`
	Title       string    `json:"title"`
}

// Reward is one row of a goal's tier reward table.
type Reward struct {
	Tier         string `json:"tier"`
	Contributors string `json:"contributors"`
	Reward       string `json:"reward"`
}

// CommunityGoal is one goal as reported by the remote source.
type CommunityGoal struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	CurrentTier  int       `json:"current_tier"`
	MaxTier      int       `json:"max_tier"`
	Ongoing      bool      `json:"ongoing"`
	LastUpdate   time.Time `json:"last_update"`
	EndDate      time.Time `json:"end_date"`
	Description  string    `json:"description"`
	Objective    string    `json:"objective"`
	Reward       string    `json:"reward"`
	System       string    `json:"system"`
	Station      string    `json:"station"`
	Contributors int       `json:"contributors"`
	Rewards      []Reward  `json:"rewards,omitempty"`
}

// IsFinished is the inverse of Ongoing.
func (g *CommunityGoal) IsFinished() bool {
	return !g.Ongoing
}

// Status projects the goal onto its persisted snapshot.
func (g *CommunityGoal) Status() CommunityGoalStatus {
	return CommunityGoalStatus{
		ID:          g.ID,
		LastUpdate:  g.LastUpdate,
		IsFinished:  g.IsFinished(),
		CurrentTier: g.CurrentTier,
		Title:       g.Title,
	}
}

// Statuses projects every goal onto its snapshot.
func Statuses(goals []CommunityGoal) []CommunityGoalStatus {
	out := make([]CommunityGoalStatus, len(goals))
	for i := range goals {
		out[i] = goals[i].Status()
	}
	return out
}

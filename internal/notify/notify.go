// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package notify delivers community goal transitions to subscribers.
//
// Delivery is best effort: the Dispatcher logs failures and reports them to
// the caller as a boolean, it never retries and never returns an error that
// could abort a watcher pass.
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edcompanion/internal/models"
)

// dateLayout matches the timestamp format existing app clients parse.
const dateLayout = "2006-01-02 15:04:05.000000"

// TierProgress is the tier block of a notification.
type TierProgress struct {
	Current int `json:"current"`
}

// GoalPayload identifies the goal a notification is about.
type GoalPayload struct {
	Title        string       `json:"title"`
	TierProgress TierProgress `json:"tier_progress"`
}

// Payload is the body of a goal notification.
type Payload struct {
	Goal GoalPayload `json:"goal"`
	Date time.Time   `json:"date"`
}

// NewPayload builds the payload for goal at now.
func NewPayload(goal *models.CommunityGoal, now time.Time) Payload {
	return Payload{
		Goal: GoalPayload{
			Title:        goal.Title,
			TierProgress: TierProgress{Current: goal.CurrentTier},
		},
		Date: now.UTC(),
	}
}

// Data flattens the payload into FCM's string-only data map. The goal
// block is carried as a JSON document.
func (p Payload) Data() (map[string]string, error) {
	goal, err := json.Marshal(p.Goal)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"goal": string(goal),
		"date": p.Date.UTC().Format(dateLayout),
	}, nil
}

// Message is one topic-addressed push.
type Message struct {
	Topic       string
	CollapseKey string
	TTL         time.Duration
	Priority    string
	Payload     Payload
}

// Sender is a notification transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

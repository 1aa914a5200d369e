// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package inara

import (
	"strings"
	"time"

	"github.com/tomtom215/edcompanion/internal/models"
)

const eventCommunityGoalsRecent = "getCommunityGoalsRecent"

type apiHeader struct {
	AppName     string `json:"appName"`
	AppVersion  string `json:"appVersion"`
	IsDeveloped bool   `json:"isDeveloped"`
	APIKey      string `json:"APIkey"`
}

type apiRequestEvent struct {
	EventName      string `json:"eventName"`
	EventTimestamp string `json:"eventTimestamp"`
	EventData      []any  `json:"eventData"`
}

type apiRequest struct {
	Header apiHeader         `json:"header"`
	Events []apiRequestEvent `json:"events"`
}

type apiResponseHeader struct {
	EventStatus     int    `json:"eventStatus"`
	EventStatusText string `json:"eventStatusText,omitempty"`
}

type apiResponseEvent struct {
	EventStatus     int       `json:"eventStatus"`
	EventStatusText string    `json:"eventStatusText,omitempty"`
	EventData       []apiGoal `json:"eventData,omitempty"`
}

type apiResponse struct {
	Header apiResponseHeader  `json:"header"`
	Events []apiResponseEvent `json:"events"`
}

// apiGoal mirrors one entry of getCommunityGoalsRecent eventData.
type apiGoal struct {
	GameID          int64  `json:"communitygoalGameID"`
	Name            string `json:"communitygoalName"`
	StarsystemName  string `json:"starsystemName"`
	StationName     string `json:"stationName"`
	GoalExpiry      string `json:"goalExpiry"`
	TierReached     int    `json:"tierReached"`
	TierMax         int    `json:"tierMax"`
	ContributorsNum int    `json:"contributorsNum"`
	IsCompleted     bool   `json:"isCompleted"`
	LastUpdate      string `json:"lastUpdate"`
	ObjectiveText   string `json:"goalObjectiveText"`
	RewardText      string `json:"goalRewardText"`
	DescriptionText string `json:"goalDescriptionText"`
}

const (
	statusOK = 200
)

// accepted reports whether the response carries usable data. Inara is
// considered to have failed only when both status codes are non-200.
func (r *apiResponse) accepted() bool {
	if r.Header.EventStatus == statusOK {
		return true
	}
	return len(r.Events) > 0 && r.Events[0].EventStatus == statusOK
}

func (r *apiResponse) goals() []apiGoal {
	if len(r.Events) == 0 {
		return nil
	}
	return r.Events[0].EventData
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// toGoal maps an API entry. A missing or unparsable lastUpdate becomes now.
func (g *apiGoal) toGoal(now time.Time) models.CommunityGoal {
	lastUpdate, ok := parseTime(g.LastUpdate)
	if !ok {
		lastUpdate = now.UTC()
	}
	endDate, _ := parseTime(g.GoalExpiry)

	return models.CommunityGoal{
		ID:           g.GameID,
		Title:        strings.TrimSpace(g.Name),
		CurrentTier:  g.TierReached,
		MaxTier:      g.TierMax,
		Ongoing:      !g.IsCompleted,
		LastUpdate:   lastUpdate,
		EndDate:      endDate,
		Description:  g.DescriptionText,
		Objective:    g.ObjectiveText,
		Reward:       g.RewardText,
		System:       g.StarsystemName,
		Station:      g.StationName,
		Contributors: g.ContributorsNum,
	}
}

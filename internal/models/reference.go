// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package models holds the persisted entities and value objects shared by
// the market pipeline and the goal watcher.
package models

// System is a star system. Names are not guaranteed unique.
type System struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// Station belongs to one system. Its name is unique only within that system.
type Station struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	SystemID int64  `json:"system_id"`
}

// Commodity is a tradeable good. InternalName is the lowercase identifier
// the live feed uses (e.g. "gold", "performanceenhancers").
type Commodity struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	InternalName string `json:"internal_name"`
}

// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package models

import "time"

// CommodityPrice is the market row for one commodity at one station.
// CollectedAt is Unix seconds and only ever moves forward.
type CommodityPrice struct {
	StationID   int64 `json:"station_id"`
	CommodityID int64 `json:"commodity_id"`
	Supply      int64 `json:"supply"`
	Demand      int64 `json:"demand"`
	BuyPrice    int64 `json:"buy_price"`
	SellPrice   int64 `json:"sell_price"`
	CollectedAt int64 `json:"collected_at"`
}

// PriceUpdate is one commodity line of a feed message after resolution.
type PriceUpdate struct {
	StationID   int64 `json:"station_id"`
	CommodityID int64 `json:"commodity_id"`
	Timestamp   int64 `json:"timestamp"` // Unix seconds, UTC
	Demand      int64 `json:"demand"`
	Supply      int64 `json:"supply"`
	BuyPrice    int64 `json:"buy_price"`
	SellPrice   int64 `json:"sell_price"`
}

// Price returns the row this update would write.
func (u PriceUpdate) Price() CommodityPrice {
	return CommodityPrice{
		StationID:   u.StationID,
		CommodityID: u.CommodityID,
		Supply:      u.Supply,
		Demand:      u.Demand,
		BuyPrice:    u.BuyPrice,
		SellPrice:   u.SellPrice,
		CollectedAt: u.Timestamp,
	}
}

// PriceUpdatedEvent is published after a price row was written.
type PriceUpdatedEvent struct {
	SystemName    string `json:"system_name"`
	StationName   string `json:"station_name"`
	CommodityName string `json:"commodity_name"`
	PriceUpdate
	ObservedAt time.Time `json:"observed_at"`
}

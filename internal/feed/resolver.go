// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package feed

import (
	"context"
	"time"

	"github.com/tomtom215/edcompanion/internal/cache"
	"github.com/tomtom215/edcompanion/internal/database"
	"github.com/tomtom215/edcompanion/internal/models"
)

type stationCacheKey struct {
	system  string
	station string
}

// Resolver caches successful station and commodity lookups across
// messages. Misses and ambiguous stations always go to the store, so a
// station that becomes unique or a commodity added to the catalog is seen
// on the next message.
//
// A cached station is not re-checked until its entry expires. If a second
// station with the same name is imported into the same system, prices keep
// landing on the cached one for up to the TTL instead of being discarded
// as ambiguous. The daemon only uses a Resolver when
// feed.resolve_cache_size is set.
type Resolver struct {
	stations    *cache.LRU[stationCacheKey, models.Station]
	commodities *cache.LRU[string, models.Commodity]
}

// NewResolver returns a Resolver holding up to size entries per kind.
func NewResolver(size int, ttl time.Duration) *Resolver {
	return &Resolver{
		stations:    cache.New[stationCacheKey, models.Station](size, ttl),
		commodities: cache.New[string, models.Commodity](size, ttl),
	}
}

// ResolverStats reports cache effectiveness.
type ResolverStats struct {
	StationHits     int64
	StationMisses   int64
	CommodityHits   int64
	CommodityMisses int64
}

// Stats returns the hit and miss counters of both caches.
func (r *Resolver) Stats() ResolverStats {
	sh, sm, _ := r.stations.Stats()
	ch, cm, _ := r.commodities.Stats()
	return ResolverStats{StationHits: sh, StationMisses: sm, CommodityHits: ch, CommodityMisses: cm}
}

func (r *Resolver) wrap(store database.MarketStore) database.MarketStore {
	return &cachedMarketStore{MarketStore: store, resolver: r}
}

type cachedMarketStore struct {
	database.MarketStore
	resolver *Resolver
}

func (s *cachedMarketStore) ResolveStation(ctx context.Context, systemName, stationName string) (database.StationResolution, error) {
	key := stationCacheKey{system: systemName, station: stationName}
	if st, ok := s.resolver.stations.Get(key); ok {
		return database.StationResolution{Outcome: database.Found, Station: st}, nil
	}

	res, err := s.MarketStore.ResolveStation(ctx, systemName, stationName)
	if err == nil && res.Outcome == database.Found {
		s.resolver.stations.Add(key, res.Station)
	}
	return res, err
}

func (s *cachedMarketStore) ResolveCommodity(ctx context.Context, internalName string) (models.Commodity, error) {
	if c, ok := s.resolver.commodities.Get(internalName); ok {
		return c, nil
	}

	c, err := s.MarketStore.ResolveCommodity(ctx, internalName)
	if err == nil {
		s.resolver.commodities.Add(internalName, c)
	}
	return c, err
}

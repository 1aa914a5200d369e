// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package feed

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/edcompanion/internal/database"
	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/models"
)

// Outcome classifies what happened to one feed message.
type Outcome int

const (
	// Processed means the station resolved and every entry was attempted.
	Processed Outcome = iota
	// Ignored means the schema is not the commodity schema.
	Ignored
	// Malformed means decompression, parsing or validation failed.
	Malformed
	// Unresolved means the station was unknown or ambiguous.
	Unresolved
	// StoreFailed means the store could not be used for this message.
	StoreFailed
)

var outcomeNames = [...]string{"processed", "ignored", "malformed", "unresolved", "store_failed"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Result summarizes one message.
type Result struct {
	Outcome Outcome
	Applied int
	Stale   int
	Unknown int // commodities missing from the catalog
	Failed  int // malformed entries and write errors
}

// SessionStore opens a scoped market session per message.
// *database.DB satisfies it.
type SessionStore interface {
	WithMarketSession(ctx context.Context, fn func(database.MarketStore) error) error
}

// PricePublisher receives every applied price. Publishing is best effort.
type PricePublisher interface {
	PublishPriceUpdated(ctx context.Context, event models.PriceUpdatedEvent) error
}

// MessageHandler processes one raw feed message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, raw []byte) Result
}

// Handler turns commodity messages into price writes.
type Handler struct {
	store     SessionStore
	schemaRef string
	publisher PricePublisher
	resolver  *Resolver
	now       func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithResolver caches station and commodity lookups in r.
func WithResolver(r *Resolver) HandlerOption {
	return func(h *Handler) { h.resolver = r }
}

// NewHandler returns a Handler accepting only schemaRef messages.
// publisher may be nil.
func NewHandler(store SessionStore, schemaRef string, publisher PricePublisher, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:     store,
		schemaRef: schemaRef,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleMessage decodes raw and applies every valid entry. It never
// returns an error: per-message faults are logged and reported in Result.
func (h *Handler) HandleMessage(ctx context.Context, raw []byte) Result {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		logging.Warn().Err(err).Int("bytes", len(raw)).Msg("Discarding undecodable feed message")
		return Result{Outcome: Malformed}
	}

	if env.SchemaRef != h.schemaRef {
		logging.Trace().Str("schema", env.SchemaRef).Msg("Ignoring feed message")
		return Result{Outcome: Ignored}
	}

	msg, err := ParseCommodityMessage(env.Message)
	if err != nil {
		logging.Warn().Err(err).
			Str("uploader", env.Header.UploaderID).
			Str("software", env.Header.SoftwareName).
			Msg("Discarding malformed commodity message")
		return Result{Outcome: Malformed}
	}

	var result Result
	err = h.store.WithMarketSession(ctx, func(store database.MarketStore) error {
		if h.resolver != nil {
			store = h.resolver.wrap(store)
		}
		result = h.applyMessage(ctx, store, msg)
		return nil
	})
	if err != nil {
		logging.Error().Err(err).
			Str("system", msg.SystemName).
			Str("station", msg.StationName).
			Msg("Market store unavailable")
		return Result{Outcome: StoreFailed}
	}
	return result
}

func (h *Handler) applyMessage(ctx context.Context, store database.MarketStore, msg *CommodityMessage) Result {
	res, err := store.ResolveStation(ctx, msg.SystemName, msg.StationName)
	if err != nil {
		logging.Error().Err(err).
			Str("system", msg.SystemName).
			Str("station", msg.StationName).
			Msg("Station lookup failed")
		return Result{Outcome: StoreFailed}
	}
	if res.Outcome != database.Found {
		logging.Info().
			Str("system", msg.SystemName).
			Str("station", msg.StationName).
			Stringer("resolution", res.Outcome).
			Msg("Station not resolved, discarding market message")
		return Result{Outcome: Unresolved}
	}

	result := Result{Outcome: Processed}
	for i, raw := range msg.Commodities {
		applied, err := h.applyEntry(ctx, store, res.Station, msg, raw)
		switch {
		case errors.Is(err, database.ErrCommodityNotFound):
			result.Unknown++
			logging.Debug().Err(err).Str("station", msg.StationName).Msg("Skipping unknown commodity")
		case err != nil:
			result.Failed++
			logging.Warn().Err(err).
				Int("entry", i).
				Str("system", msg.SystemName).
				Str("station", msg.StationName).
				Msg("Skipping commodity entry")
		case applied == database.Applied:
			result.Applied++
		default:
			result.Stale++
		}
	}

	logging.Debug().
		Str("system", msg.SystemName).
		Str("station", msg.StationName).
		Int("applied", result.Applied).
		Int("stale", result.Stale).
		Int("unknown", result.Unknown).
		Int("failed", result.Failed).
		Msg("Market message processed")
	return result
}

func (h *Handler) applyEntry(ctx context.Context, store database.MarketStore, station models.Station, msg *CommodityMessage, raw []byte) (database.ApplyResult, error) {
	entry, err := ParseEntry(raw)
	if err != nil {
		return database.Stale, err
	}

	commodity, err := store.ResolveCommodity(ctx, entry.Name)
	if err != nil {
		return database.Stale, err
	}

	update := models.PriceUpdate{
		StationID:   station.ID,
		CommodityID: commodity.ID,
		Timestamp:   msg.CollectedAt(),
		Demand:      *entry.Demand,
		Supply:      *entry.Stock,
		BuyPrice:    *entry.BuyPrice,
		SellPrice:   *entry.SellPrice,
	}
	applied, err := store.ApplyPrice(ctx, update)
	if err != nil {
		return database.Stale, err
	}

	if applied == database.Applied && h.publisher != nil {
		event := models.PriceUpdatedEvent{
			SystemName:    msg.SystemName,
			StationName:   station.Name,
			CommodityName: commodity.InternalName,
			PriceUpdate:   update,
			ObservedAt:    h.now().UTC(),
		}
		if err := h.publisher.PublishPriceUpdated(ctx, event); err != nil {
			logging.Warn().Err(err).Str("commodity", commodity.InternalName).Msg("Failed to publish price update")
		}
	}
	return applied, nil
}

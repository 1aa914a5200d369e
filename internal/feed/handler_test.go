// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/edcompanion/internal/database"
	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/models"
)

type stationKey struct{ system, station string }

// fakeStore implements SessionStore and database.MarketStore in memory.
type fakeStore struct {
	mu          sync.Mutex
	stations    map[stationKey][]models.Station
	commodities map[string]models.Commodity
	prices      map[[2]int64]models.CommodityPrice
	writes      int
	sessions    int
	sessionErr  error
	applyErr    map[string]error

	stationLookups   int
	commodityLookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stations: map[stationKey][]models.Station{
			{"Sol", "Daedalus"}:                      {{ID: 11, Name: "Daedalus", SystemID: 1}},
			{"Lave", "Twin Port"}:                    {{ID: 21, Name: "Twin Port", SystemID: 2}, {ID: 22, Name: "Twin Port", SystemID: 2}},
			{"Shinrarta Dezhra", "Jameson Memorial"}: {{ID: 30, Name: "Jameson Memorial", SystemID: 3}, {ID: 40, Name: "Jameson Memorial", SystemID: 4}},
		},
		commodities: map[string]models.Commodity{
			"gold":    {ID: 100, Name: "Gold", InternalName: "gold"},
			"tritium": {ID: 101, Name: "Tritium", InternalName: "tritium"},
		},
		prices:   map[[2]int64]models.CommodityPrice{},
		applyErr: map[string]error{},
	}
}

func (f *fakeStore) WithMarketSession(ctx context.Context, fn func(database.MarketStore) error) error {
	f.mu.Lock()
	f.sessions++
	err := f.sessionErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(f)
}

func (f *fakeStore) ResolveStation(_ context.Context, system, station string) (database.StationResolution, error) {
	f.mu.Lock()
	f.stationLookups++
	f.mu.Unlock()
	matches := f.stations[stationKey{system, station}]
	switch len(matches) {
	case 0:
		return database.StationResolution{Outcome: database.NotFound}, nil
	case 1:
		return database.StationResolution{Outcome: database.Found, Station: matches[0]}, nil
	default:
		return database.StationResolution{Outcome: database.Ambiguous}, nil
	}
}

func (f *fakeStore) ResolveCommodity(_ context.Context, name string) (models.Commodity, error) {
	f.mu.Lock()
	f.commodityLookups++
	f.mu.Unlock()
	c, ok := f.commodities[name]
	if !ok {
		return models.Commodity{}, fmt.Errorf("%w: %s", database.ErrCommodityNotFound, name)
	}
	return c, nil
}

func (f *fakeStore) ApplyPrice(_ context.Context, u models.PriceUpdate) (database.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, c := range f.commodities {
		if c.ID == u.CommodityID && f.applyErr[name] != nil {
			return database.Stale, f.applyErr[name]
		}
	}
	key := [2]int64{u.StationID, u.CommodityID}
	if cur, ok := f.prices[key]; ok && u.Timestamp <= cur.CollectedAt {
		return database.Stale, nil
	}
	f.prices[key] = u.Price()
	f.writes++
	return database.Applied, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PriceUpdatedEvent
	err    error
}

func (p *recordingPublisher) PublishPriceUpdated(_ context.Context, e models.PriceUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func entry(name string, buy, sell, demand, stock int64) map[string]any {
	return map[string]any{"name": name, "buyPrice": buy, "sellPrice": sell, "demand": demand, "stock": stock}
}

func commodityMessage(system, station, ts string, entries ...any) map[string]any {
	return map[string]any{
		"systemName":  system,
		"stationName": station,
		"marketId":    128000000,
		"timestamp":   ts,
		"commodities": entries,
	}
}

func TestHandleMessageOutcomes(t *testing.T) {
	t.Parallel()

	const ts = "2023-11-14T22:13:20Z"
	good := entry("gold", 9000, 8800, 0, 120)

	tests := []struct {
		name        string
		raw         func(t *testing.T) []byte
		wantOutcome Outcome
		wantWrites  int
		wantResult  Result
	}{
		{
			name: "unknown schema is ignored",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, "https://eddn.edcd.io/schemas/journal/1", commodityMessage("Sol", "Daedalus", ts, good))
			},
			wantOutcome: Ignored,
		},
		{
			name: "older commodity schema is ignored",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, "https://eddn.edcd.io/schemas/commodity/2", commodityMessage("Sol", "Daedalus", ts, good))
			},
			wantOutcome: Ignored,
		},
		{
			name:        "garbage bytes",
			raw:         func(*testing.T) []byte { return []byte{0xde, 0xad, 0xbe, 0xef} },
			wantOutcome: Malformed,
		},
		{
			name:        "missing station name",
			raw:         func(t *testing.T) []byte { return envelopeBytes(t, testSchema, commodityMessage("Sol", "", ts, good)) },
			wantOutcome: Malformed,
		},
		{
			name: "unknown station",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, testSchema, commodityMessage("Sol", "Galileo", ts, good))
			},
			wantOutcome: Unresolved,
		},
		{
			name: "duplicate station within one system",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, testSchema, commodityMessage("Lave", "Twin Port", ts, good))
			},
			wantOutcome: Unresolved,
		},
		{
			name: "duplicate system names",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, testSchema, commodityMessage("Shinrarta Dezhra", "Jameson Memorial", ts, good))
			},
			wantOutcome: Unresolved,
		},
		{
			name: "one good entry and one malformed entry",
			raw: func(t *testing.T) []byte {
				bad := map[string]any{"name": "tritium", "sellPrice": 10, "demand": 1, "stock": 1}
				return envelopeBytes(t, testSchema, commodityMessage("Sol", "Daedalus", ts, good, bad))
			},
			wantOutcome: Processed,
			wantWrites:  1,
			wantResult:  Result{Outcome: Processed, Applied: 1, Failed: 1},
		},
		{
			name: "unknown commodity skips only that line",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, testSchema, commodityMessage("Sol", "Daedalus", ts,
					entry("unobtainium", 1, 1, 1, 1), good, entry("tritium", 50000, 49000, 10, 0)))
			},
			wantOutcome: Processed,
			wantWrites:  2,
			wantResult:  Result{Outcome: Processed, Applied: 2, Unknown: 1},
		},
		{
			name: "entry of the wrong shape",
			raw: func(t *testing.T) []byte {
				return envelopeBytes(t, testSchema, commodityMessage("Sol", "Daedalus", ts, "gold", good))
			},
			wantOutcome: Processed,
			wantWrites:  1,
			wantResult:  Result{Outcome: Processed, Applied: 1, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			h := NewHandler(store, testSchema, nil)
			got := h.HandleMessage(context.Background(), tt.raw(t))

			if got.Outcome != tt.wantOutcome {
				t.Fatalf("Outcome = %v, want %v", got.Outcome, tt.wantOutcome)
			}
			if store.writes != tt.wantWrites {
				t.Errorf("writes = %d, want %d", store.writes, tt.wantWrites)
			}
			if tt.wantResult != (Result{}) && got != tt.wantResult {
				t.Errorf("Result = %+v, want %+v", got, tt.wantResult)
			}
			if tt.wantOutcome == Ignored && store.sessions != 0 {
				t.Errorf("ignored messages must not touch the store, sessions = %d", store.sessions)
			}
		})
	}
}

// Not parallel: swaps the global logger.
func TestHandleMessageIgnoredSchemaIsSilent(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(logging.NewTestLogger(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	store := newFakeStore()
	h := NewHandler(store, testSchema, nil)

	for _, schema := range []string{
		"https://eddn.edcd.io/schemas/journal/1",
		"https://eddn.edcd.io/schemas/outfitting/2",
		"https://eddn.edcd.io/schemas/commodity/2",
	} {
		raw := envelopeBytes(t, schema, commodityMessage("Sol", "Daedalus", "2023-11-14T22:13:20Z",
			entry("gold", 9000, 8800, 0, 120)))
		if got := h.HandleMessage(context.Background(), raw); got.Outcome != Ignored {
			t.Fatalf("%s: Outcome = %v, want ignored", schema, got.Outcome)
		}
	}

	if store.sessions != 0 || store.writes != 0 {
		t.Errorf("ignored messages touched the store: sessions=%d writes=%d", store.sessions, store.writes)
	}
	out := buf.String()
	for _, level := range []string{`"level":"warn"`, `"level":"error"`} {
		if strings.Contains(out, level) {
			t.Errorf("ignored messages must not log at %s, got: %s", level, out)
		}
	}
}

func TestHandleMessageFreshness(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	h := NewHandler(store, testSchema, nil)
	ctx := context.Background()

	send := func(ts string, buy int64) Result {
		return h.HandleMessage(ctx, envelopeBytes(t, testSchema,
			commodityMessage("Sol", "Daedalus", ts, entry("gold", buy, buy-100, 5, 6))))
	}

	if r := send("2023-11-14T22:13:20Z", 9000); r.Applied != 1 {
		t.Fatalf("first message: %+v", r)
	}
	if r := send("2023-11-14T22:10:00Z", 1); r.Stale != 1 || r.Applied != 0 {
		t.Errorf("older message should be stale: %+v", r)
	}
	if r := send("2023-11-14T22:13:20Z", 2); r.Stale != 1 {
		t.Errorf("same timestamp should be stale: %+v", r)
	}
	if got := store.prices[[2]int64{11, 100}]; got.BuyPrice != 9000 || got.CollectedAt != 1700000000 {
		t.Errorf("stored price %+v", got)
	}
}

func TestHandleMessageWriteErrorIsolated(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.applyErr["gold"] = errors.New("disk full")
	h := NewHandler(store, testSchema, nil)

	got := h.HandleMessage(context.Background(), envelopeBytes(t, testSchema,
		commodityMessage("Sol", "Daedalus", "2023-11-14T22:13:20Z",
			entry("gold", 1, 1, 1, 1), entry("tritium", 2, 2, 2, 2))))

	if got.Failed != 1 || got.Applied != 1 {
		t.Errorf("Result = %+v, want one failure and one write", got)
	}
}

func TestHandleMessageStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.sessionErr = errors.New("connection refused")
	h := NewHandler(store, testSchema, nil)

	got := h.HandleMessage(context.Background(), envelopeBytes(t, testSchema,
		commodityMessage("Sol", "Daedalus", "2023-11-14T22:13:20Z", entry("gold", 1, 1, 1, 1))))
	if got.Outcome != StoreFailed {
		t.Errorf("Outcome = %v, want store_failed", got.Outcome)
	}
}

func TestHandleMessagePublishesAppliedPrices(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &recordingPublisher{err: errors.New("nats down")}
	h := NewHandler(store, testSchema, pub)
	ctx := context.Background()

	raw := envelopeBytes(t, testSchema, commodityMessage("Sol", "Daedalus", "2023-11-14T22:13:20Z",
		entry("gold", 9000, 8800, 0, 120)))
	first := h.HandleMessage(ctx, raw)
	second := h.HandleMessage(ctx, raw)

	if first.Applied != 1 || second.Stale != 1 {
		t.Fatalf("unexpected results %+v %+v", first, second)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one published event (stale writes are not published), got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.CommodityName != "gold" || ev.StationName != "Daedalus" || ev.SystemName != "Sol" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.BuyPrice != 9000 || ev.Supply != 120 || ev.Timestamp != 1700000000 {
		t.Errorf("unexpected event prices %+v", ev)
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	if Processed.String() != "processed" || StoreFailed.String() != "store_failed" || Outcome(99).String() != "unknown" {
		t.Error("unexpected outcome names")
	}
}

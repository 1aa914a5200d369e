// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package inara

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edcompanion/internal/config"
)

const goalsResponse = `{
  "header": {"eventStatus": 200},
  "events": [{
    "eventStatus": 200,
    "eventData": [
      {
        "communitygoalGameID": 741,
        "communitygoalName": "Colonia Bridge Project",
        "starsystemName": "Ratraii",
        "stationName": "Hirayama Installation",
        "goalExpiry": "2024-03-07T06:00:00Z",
        "tierReached": 3,
        "tierMax": 8,
        "contributorsNum": 4120,
        "isCompleted": false,
        "lastUpdate": "2024-03-01T12:30:00Z",
        "goalObjectiveText": "Deliver steel",
        "goalRewardText": "Credits",
        "goalDescriptionText": "Help build the bridge"
      },
      {
        "communitygoalGameID": 742,
        "communitygoalName": "   ",
        "tierReached": 1,
        "tierMax": 5
      },
      {
        "communitygoalGameID": 743,
        "communitygoalName": "Thargoid Defence",
        "tierReached": 5,
        "tierMax": 5,
        "isCompleted": true
      }
    ]
  }]
}`

const goalsPage = `<html><body>
<table>
  <tr><th>Tier</th><th>Contributors</th><th>Reward</th></tr>
  <tr><td>Tier 1</td><td>Top 75%</td><td>1,000,000 CR</td></tr>
  <tr><td>Tier 2</td><td>Top 50%</td><td> 2,000,000 CR </td></tr>
</table>
<table>
  <tr><th>Tier</th><th>Contributors</th><th>Reward</th></tr>
  <tr><td>Tier 1</td><td>Top 10</td><td>Decal</td></tr>
</table>
<table>
  <tr><th>Tier</th><th>Contributors</th><th>Reward</th></tr>
  <tr><td>Tier 1</td><td>All</td><td>Medal</td></tr>
</table>
</body></html>`

type fakeInara struct {
	apiBody    string
	apiStatus  int
	pageBody   string
	pageStatus int

	apiCalls  atomic.Int32
	pageCalls atomic.Int32
	lastAgent atomic.Value
	lastBody  atomic.Value
}

func (f *fakeInara) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inapi/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		f.lastAgent.Store(r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(body))
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status := f.apiStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, f.apiBody)
	})
	mux.HandleFunc("/galaxy-communitygoals/", func(w http.ResponseWriter, _ *http.Request) {
		f.pageCalls.Add(1)
		status := f.pageStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, f.pageBody)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeInara, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := &config.InaraConfig{
		APIURL:     srv.URL + "/inapi/v1/",
		PageURL:    srv.URL + "/galaxy-communitygoals/",
		APIKey:     "secret",
		AppName:    "EDCompanion",
		AppVersion: "1.2.3",
		Timeout:    2 * time.Second,
	}
	fixed := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	return NewClient(cfg, opts...)
}

func TestFetchCommunityGoals(t *testing.T) {
	t.Parallel()

	f := &fakeInara{apiBody: goalsResponse, pageBody: goalsPage}
	client := newTestClient(t, f)

	goals, err := client.FetchCommunityGoals(context.Background())
	if err != nil {
		t.Fatalf("FetchCommunityGoals() error = %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("expected 2 goals (untitled skipped), got %d", len(goals))
	}

	first := goals[0]
	if first.ID != 741 || first.Title != "Colonia Bridge Project" {
		t.Errorf("unexpected first goal: %+v", first)
	}
	if first.CurrentTier != 3 || first.MaxTier != 8 || !first.Ongoing || first.IsFinished() {
		t.Errorf("unexpected tier/ongoing mapping: %+v", first)
	}
	if !first.LastUpdate.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("LastUpdate = %v", first.LastUpdate)
	}
	if !first.EndDate.Equal(time.Date(2024, 3, 7, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("EndDate = %v", first.EndDate)
	}
	if first.System != "Ratraii" || first.Station != "Hirayama Installation" || first.Contributors != 4120 {
		t.Errorf("unexpected location mapping: %+v", first)
	}
	if len(first.Rewards) != 2 || first.Rewards[1].Reward != "2,000,000 CR" {
		t.Errorf("unexpected rewards for first goal: %+v", first.Rewards)
	}

	second := goals[1]
	if !second.IsFinished() {
		t.Error("expected completed goal to be finished")
	}
	if !second.LastUpdate.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("missing lastUpdate should default to now, got %v", second.LastUpdate)
	}
	if len(second.Rewards) != 1 || second.Rewards[0].Reward != "Medal" {
		t.Errorf("rewards should follow eventData position, got %+v", second.Rewards)
	}

	if agent, _ := f.lastAgent.Load().(string); agent != "EDCompanion/1.2.3" {
		t.Errorf("User-Agent = %q", agent)
	}
}

func TestFetchCommunityGoalsRequestBody(t *testing.T) {
	t.Parallel()

	f := &fakeInara{apiBody: goalsResponse}
	client := newTestClient(t, f)

	if _, err := client.FetchCommunityGoals(context.Background()); err != nil {
		t.Fatalf("FetchCommunityGoals() error = %v", err)
	}

	raw, _ := f.lastBody.Load().(string)
	var req apiRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if req.Header.APIKey != "secret" || req.Header.AppName != "EDCompanion" || req.Header.AppVersion != "1.2.3" {
		t.Errorf("unexpected header: %+v", req.Header)
	}
	if len(req.Events) != 1 || req.Events[0].EventName != "getCommunityGoalsRecent" {
		t.Fatalf("unexpected events: %+v", req.Events)
	}
	if req.Events[0].EventTimestamp != "2024-03-02T00:00:00Z" {
		t.Errorf("EventTimestamp = %q", req.Events[0].EventTimestamp)
	}
	if !strings.Contains(raw, `"eventData":[]`) {
		t.Errorf("expected empty eventData array, got %s", raw)
	}
}

func TestFetchCommunityGoalsStatusRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantLen int
	}{
		{
			name:    "header ok event failed",
			body:    `{"header":{"eventStatus":200},"events":[{"eventStatus":400}]}`,
			wantLen: 0,
		},
		{
			name:    "header failed event ok",
			body:    `{"header":{"eventStatus":400},"events":[{"eventStatus":200,"eventData":[{"communitygoalGameID":1,"communitygoalName":"A","tierReached":1}]}]}`,
			wantLen: 1,
		},
		{
			name:    "both failed",
			body:    `{"header":{"eventStatus":400,"eventStatusText":"Invalid API key"},"events":[{"eventStatus":400}]}`,
			wantErr: true,
		},
		{
			name:    "header failed no events",
			body:    `{"header":{"eventStatus":500},"events":[]}`,
			wantErr: true,
		},
		{
			name:    "no goals running",
			body:    `{"header":{"eventStatus":200},"events":[{"eventStatus":204}]}`,
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, &fakeInara{apiBody: tt.body})
			goals, err := client.FetchCommunityGoals(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrContentFetch) {
					t.Fatalf("expected ErrContentFetch, got %v", err)
				}
				var cfe *ContentFetchError
				if !errors.As(err, &cfe) || cfe.Stage != StageStatus {
					t.Errorf("expected status stage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchCommunityGoals() error = %v", err)
			}
			if goals == nil {
				t.Error("expected non-nil empty slice")
			}
			if len(goals) != tt.wantLen {
				t.Errorf("expected %d goals, got %d", tt.wantLen, len(goals))
			}
		})
	}
}

func TestFetchCommunityGoalsTransportFailures(t *testing.T) {
	t.Parallel()

	t.Run("http status", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, &fakeInara{apiStatus: http.StatusBadGateway})
		_, err := client.FetchCommunityGoals(context.Background())
		var cfe *ContentFetchError
		if !errors.As(err, &cfe) || cfe.Stage != StageHTTP || cfe.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected http stage error with 502, got %v", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, &fakeInara{apiBody: "<html>maintenance</html>"})
		_, err := client.FetchCommunityGoals(context.Background())
		var cfe *ContentFetchError
		if !errors.As(err, &cfe) || cfe.Stage != StageDecode {
			t.Fatalf("expected decode stage error, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client := NewClient(&config.InaraConfig{APIURL: url, AppName: "EDCompanion", Timeout: time.Second})
		_, err := client.FetchCommunityGoals(context.Background())
		if !errors.Is(err, ErrContentFetch) {
			t.Fatalf("expected ErrContentFetch, got %v", err)
		}
	})
}

func TestFetchCommunityGoalsRewardsBestEffort(t *testing.T) {
	t.Parallel()

	f := &fakeInara{apiBody: goalsResponse, pageStatus: http.StatusServiceUnavailable}
	client := newTestClient(t, f)

	goals, err := client.FetchCommunityGoals(context.Background())
	if err != nil {
		t.Fatalf("rewards page failure must not fail the fetch: %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("expected 2 goals, got %d", len(goals))
	}
	for _, g := range goals {
		if len(g.Rewards) != 0 {
			t.Errorf("expected no rewards for %q, got %+v", g.Title, g.Rewards)
		}
	}
	if f.pageCalls.Load() != 1 {
		t.Errorf("expected one page request, got %d", f.pageCalls.Load())
	}
}

func TestFetchCommunityGoalsCache(t *testing.T) {
	t.Parallel()

	cache, err := OpenCache("", 10*time.Minute)
	if err != nil {
		t.Fatalf("OpenCache() error = %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	f := &fakeInara{apiBody: goalsResponse}
	client := newTestClient(t, f, WithCache(cache))

	for i := 0; i < 3; i++ {
		goals, err := client.FetchCommunityGoals(context.Background())
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(goals) != 2 {
			t.Fatalf("fetch %d: expected 2 goals, got %d", i, len(goals))
		}
	}
	if f.apiCalls.Load() != 1 {
		t.Errorf("expected a single API call with cache enabled, got %d", f.apiCalls.Load())
	}
}

func TestFetchCommunityGoalsFailureNotCached(t *testing.T) {
	t.Parallel()

	cache, err := OpenCache("", 10*time.Minute)
	if err != nil {
		t.Fatalf("OpenCache() error = %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	f := &fakeInara{apiBody: `{"header":{"eventStatus":400},"events":[{"eventStatus":400}]}`}
	client := newTestClient(t, f, WithCache(cache))

	for i := 0; i < 2; i++ {
		if _, err := client.FetchCommunityGoals(context.Background()); err == nil {
			t.Fatalf("fetch %d: expected error", i)
		}
	}
	if f.apiCalls.Load() != 2 {
		t.Errorf("failed responses must not be cached, got %d API calls", f.apiCalls.Load())
	}
}

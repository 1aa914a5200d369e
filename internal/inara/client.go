// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

/*
Package inara fetches the community goals snapshot from the Inara API.

One fetch is one POST of a getCommunityGoalsRecent event to the API
endpoint, followed by a best-effort GET of the public goals page whose reward
tables decorate the result. A failure of the POST (transport, HTTP status,
Inara status, decoding) aborts the fetch with a *ContentFetchError; a failure
of the page GET only drops the rewards.

Resilience:
  - Circuit breaker around the API call
  - Optional badger response cache (disabled when CacheTTL is 0)
  - Fixed per-request timeout from InaraConfig.Timeout
*/
package inara

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/edcompanion/internal/breaker"
	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/logging"
	"github.com/tomtom215/edcompanion/internal/models"
)

const (
	cacheKey = "inara:" + eventCommunityGoalsRecent

	// maxBodySize bounds both the API response and the goals page.
	maxBodySize = 8 << 20
)

// Client talks to the Inara API and goals page.
type Client struct {
	cfg   *config.InaraConfig
	http  *http.Client
	cb    *gobreaker.CircuitBreaker[[]byte]
	cache *Cache
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache enables response caching.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a client for cfg.
func NewClient(cfg *config.InaraConfig, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		cb: breaker.New[[]byte](breaker.Settings{
			Name:        "inara-api",
			MinRequests: 3,
			Timeout:     5 * time.Minute,
		}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) userAgent() string {
	return fmt.Sprintf("%s/%s", c.cfg.AppName, c.cfg.AppVersion)
}

// FetchCommunityGoals returns the current goals. Zero running goals is an
// empty slice, not an error. Goals without a title are dropped.
func (c *Client) FetchCommunityGoals(ctx context.Context) ([]models.CommunityGoal, error) {
	body, err := c.fetchAPI(ctx)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ContentFetchError{Stage: StageDecode, Err: err}
	}
	if !resp.accepted() {
		return nil, &ContentFetchError{Stage: StageStatus, StatusCode: resp.Header.EventStatus}
	}

	entries := resp.goals()
	goals := make([]models.CommunityGoal, 0, len(entries))
	if len(entries) == 0 {
		return goals, nil
	}

	rewards := c.fetchRewards(ctx)
	now := c.now()
	for i := range entries {
		goal := entries[i].toGoal(now)
		if goal.Title == "" {
			logging.Ctx(ctx).Debug().Int64("goal_id", goal.ID).Msg("Skipping community goal without title")
			continue
		}
		if i < len(rewards) {
			goal.Rewards = rewards[i]
		}
		goals = append(goals, goal)
	}
	return goals, nil
}

// fetchAPI returns the raw API body, from cache when fresh.
func (c *Client) fetchAPI(ctx context.Context) ([]byte, error) {
	if c.cache != nil {
		body, ok, err := c.cache.Get(cacheKey)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Inara cache read failed")
		} else if ok {
			logging.Ctx(ctx).Debug().Msg("Using cached Inara response")
			return body, nil
		}
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.post(ctx)
	})
	if err != nil {
		if breaker.IsRejection(err) {
			return nil, &ContentFetchError{Stage: StageBreaker, Err: err}
		}
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(cacheKey, body); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Inara cache write failed")
		}
	}
	return body, nil
}

func (c *Client) post(ctx context.Context) ([]byte, error) {
	payload, err := json.Marshal(apiRequest{
		Header: apiHeader{
			AppName:     c.cfg.AppName,
			AppVersion:  c.cfg.AppVersion,
			IsDeveloped: c.cfg.Developed,
			APIKey:      c.cfg.APIKey,
		},
		Events: []apiRequestEvent{{
			EventName:      eventCommunityGoalsRecent,
			EventTimestamp: c.now().UTC().Format(time.RFC3339),
			EventData:      []any{},
		}},
	})
	if err != nil {
		return nil, &ContentFetchError{Stage: StageHTTP, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &ContentFetchError{Stage: StageHTTP, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ContentFetchError{Stage: StageHTTP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ContentFetchError{Stage: StageHTTP, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ContentFetchError{Stage: StageHTTP, Err: err}
	}

	// Reject bad Inara statuses here so they count against the breaker
	// and never reach the cache.
	var probe apiResponse
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, &ContentFetchError{Stage: StageDecode, Err: err}
	}
	if !probe.accepted() {
		return nil, &ContentFetchError{Stage: StageStatus, StatusCode: probe.Header.EventStatus}
	}
	return body, nil
}

// fetchRewards returns the reward tables, or nil when the page is
// unavailable for any reason.
func (c *Client) fetchRewards(ctx context.Context) [][]models.Reward {
	if c.cfg.PageURL == "" {
		return nil
	}

	log := logging.Ctx(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PageURL, http.NoBody)
	if err != nil {
		log.Debug().Err(err).Msg("Rewards page request failed")
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Rewards page unavailable")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("Rewards page unavailable")
		return nil
	}

	rewards, err := ParseRewards(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		log.Debug().Err(err).Msg("Rewards page could not be parsed")
		return nil
	}
	return rewards
}

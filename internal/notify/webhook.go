// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package notify

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edcompanion/internal/config"
)

// WebhookPayload is the JSON body posted to the webhook endpoint.
type WebhookPayload struct {
	Topic       string    `json:"topic"`
	CollapseKey string    `json:"collapse_key"`
	TTLSeconds  int64     `json:"ttl"`
	Priority    string    `json:"priority"`
	Data        Payload   `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
}

// WebhookSender posts notifications to a generic HTTP endpoint.
type WebhookSender struct {
	url     string
	headers map[string]string
	client  *http.Client
	agent   string
}

// NewWebhookSender returns a sender for cfg. userAgent identifies the
// daemon to the endpoint.
func NewWebhookSender(cfg *config.WebhookConfig, userAgent string) *WebhookSender {
	return &WebhookSender{
		url:     cfg.URL,
		headers: maps.Clone(cfg.Headers),
		agent:   userAgent,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name implements Sender.
func (s *WebhookSender) Name() string { return "webhook" }

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(WebhookPayload{
		Topic:       msg.Topic,
		CollapseKey: msg.CollapseKey,
		TTLSeconds:  int64(msg.TTL / time.Second),
		Priority:    msg.Priority,
		Data:        msg.Payload,
		Timestamp:   time.Now().UTC(),
		Source:      "edcompanion",
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.agent != "" {
		req.Header.Set("User-Agent", s.agent)
	}
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

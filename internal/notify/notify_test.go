// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/goccy/go-json"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func testNotifyConfig() *config.NotifyConfig {
	return &config.NotifyConfig{
		Transport: "log",
		TTL:       24 * time.Hour,
		Priority:  "high",
	}
}

func samplePayload() Payload {
	goal := &models.CommunityGoal{ID: 1, Title: "Colonia Bridge Project", CurrentTier: 3}
	return NewPayload(goal, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestDispatcherSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		debug     bool
		suffix    string
		wantTopic string
	}{
		{name: "production", wantTopic: "new_tier"},
		{name: "debug", debug: true, wantTopic: "new_tier_test"},
		{name: "explicit suffix", suffix: "_staging", wantTopic: "new_tier_staging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testNotifyConfig()
			cfg.TopicSuffix = tt.suffix
			sender := &recordingSender{}
			d := NewDispatcher(sender, cfg, tt.debug)

			if !d.Send(context.Background(), "new_tier", "Colonia Bridge Project", samplePayload()) {
				t.Fatal("expected Send to succeed")
			}
			if len(sender.msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(sender.msgs))
			}
			msg := sender.msgs[0]
			if msg.Topic != tt.wantTopic {
				t.Errorf("Topic = %q, want %q", msg.Topic, tt.wantTopic)
			}
			if msg.CollapseKey != "Colonia Bridge Project" {
				t.Errorf("CollapseKey = %q", msg.CollapseKey)
			}
			if msg.TTL != 24*time.Hour || msg.Priority != "high" {
				t.Errorf("unexpected delivery options: ttl=%v priority=%q", msg.TTL, msg.Priority)
			}
		})
	}
}

func TestDispatcherFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: errors.New("quota exceeded")}
	d := NewDispatcher(sender, testNotifyConfig(), false)

	if d.Send(context.Background(), "new_goal", "A", samplePayload()) {
		t.Fatal("expected Send to report failure")
	}
	if d.Send(context.Background(), "new_goal", "B", samplePayload()) {
		t.Fatal("expected Send to report failure")
	}
	if len(sender.msgs) != 2 {
		t.Errorf("expected one attempt per call and no retries, got %d", len(sender.msgs))
	}
	if got := d.Stats(); got.Failed != 2 || got.Sent != 0 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestDispatcherCanceledContext(t *testing.T) {
	t.Parallel()

	cfg := testNotifyConfig()
	cfg.RateLimit = 0.001
	sender := &recordingSender{}
	d := NewDispatcher(sender, cfg, false)

	if !d.Send(context.Background(), "new_goal", "A", samplePayload()) {
		t.Fatal("first send should use the burst token")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if d.Send(ctx, "new_goal", "B", samplePayload()) {
		t.Fatal("expected throttled send on canceled context to fail")
	}
	if len(sender.msgs) != 1 {
		t.Errorf("expected only the first message to reach the sender, got %d", len(sender.msgs))
	}
}

func TestPayloadData(t *testing.T) {
	t.Parallel()

	data, err := samplePayload().Data()
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	if data["date"] != "2024-03-01 12:00:00.000000" {
		t.Errorf("date = %q", data["date"])
	}

	var goal GoalPayload
	if err := json.Unmarshal([]byte(data["goal"]), &goal); err != nil {
		t.Fatalf("goal is not JSON: %v", err)
	}
	if goal.Title != "Colonia Bridge Project" || goal.TierProgress.Current != 3 {
		t.Errorf("unexpected goal block: %+v", goal)
	}
}

type fakeMessaging struct {
	got *messaging.Message
	err error
}

func (f *fakeMessaging) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.got = m
	return "projects/test/messages/1", f.err
}

func TestFCMSender(t *testing.T) {
	t.Parallel()

	fake := &fakeMessaging{}
	sender := &FCMSender{client: fake}

	msg := &Message{
		Topic:       "finished_goal",
		CollapseKey: "Colonia Bridge Project",
		TTL:         86400 * time.Second,
		Priority:    "high",
		Payload:     samplePayload(),
	}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := fake.got
	if got.Topic != "finished_goal" {
		t.Errorf("Topic = %q", got.Topic)
	}
	if got.Android == nil || got.Android.CollapseKey != "Colonia Bridge Project" || got.Android.Priority != "high" {
		t.Fatalf("unexpected android config: %+v", got.Android)
	}
	if got.Android.TTL == nil || *got.Android.TTL != 24*time.Hour {
		t.Errorf("TTL = %v", got.Android.TTL)
	}
	if !strings.Contains(got.Data["goal"], `"current":3`) {
		t.Errorf("unexpected data: %v", got.Data)
	}
}

func TestFCMSenderError(t *testing.T) {
	t.Parallel()

	sender := &FCMSender{client: &fakeMessaging{err: errors.New("unavailable")}}
	err := sender.Send(context.Background(), &Message{Topic: "new_goal", Payload: samplePayload()})
	if err == nil {
		t.Fatal("expected error")
	}

	if err := sender.Send(context.Background(), &Message{Payload: samplePayload()}); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestWebhookSender(t *testing.T) {
	t.Parallel()

	var (
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender(&config.WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	}, "EDCompanion/test")

	msg := &Message{Topic: "new_goal", CollapseKey: "A", TTL: time.Hour, Priority: "high", Payload: samplePayload()}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotHeader.Get("Authorization") != "Bearer token" {
		t.Errorf("custom header missing: %v", gotHeader)
	}
	if gotHeader.Get("User-Agent") != "EDCompanion/test" {
		t.Errorf("User-Agent = %q", gotHeader.Get("User-Agent"))
	}

	var payload WebhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if payload.Topic != "new_goal" || payload.TTLSeconds != 3600 || payload.Data.Goal.Title != "Colonia Bridge Project" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(&config.WebhookConfig{URL: srv.URL}, "")
	if err := sender.Send(context.Background(), &Message{Topic: "x", Payload: samplePayload()}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	cfg := testNotifyConfig()
	s, err := NewSender(context.Background(), cfg, "ua")
	if err != nil || s.Name() != "log" {
		t.Fatalf("expected log sender, got %v, %v", s, err)
	}

	cfg.Transport = "webhook"
	cfg.Webhook.URL = "http://127.0.0.1:1/hook"
	s, err = NewSender(context.Background(), cfg, "ua")
	if err != nil || s.Name() != "webhook" {
		t.Fatalf("expected webhook sender, got %v, %v", s, err)
	}

	if err := (LogSender{}).Send(context.Background(), &Message{Topic: "t", Payload: samplePayload()}); err != nil {
		t.Errorf("LogSender.Send() error = %v", err)
	}
}

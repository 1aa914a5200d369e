// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package notify

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/logging"
)

// Stats counts dispatch outcomes since the Dispatcher was created.
type Stats struct {
	Sent   int64
	Failed int64
}

// Dispatcher addresses transitions to topics and hands them to a Sender.
type Dispatcher struct {
	sender      Sender
	limiter     *rate.Limiter
	topicSuffix string
	ttl         time.Duration
	priority    string

	sent   atomic.Int64
	failed atomic.Int64
}

// NewDispatcher returns a dispatcher for cfg. In debug mode topics get the
// "_test" suffix unless cfg sets one explicitly.
func NewDispatcher(sender Sender, cfg *config.NotifyConfig, debug bool) *Dispatcher {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Dispatcher{
		sender:      sender,
		limiter:     rate.NewLimiter(limit, 1),
		topicSuffix: cfg.EffectiveTopicSuffix(debug),
		ttl:         cfg.TTL,
		priority:    cfg.Priority,
	}
}

// Send delivers one notification. kind selects the topic and title is the
// collapse key. It reports whether the transport accepted the message.
func (d *Dispatcher) Send(ctx context.Context, kind, title string, payload Payload) bool {
	log := logging.Ctx(ctx).With().
		Str("transport", d.sender.Name()).
		Str("kind", kind).
		Str("goal", title).
		Logger()

	if err := d.limiter.Wait(ctx); err != nil {
		d.failed.Add(1)
		log.Error().Err(err).Msg("Notification not sent")
		return false
	}

	msg := &Message{
		Topic:       kind + d.topicSuffix,
		CollapseKey: title,
		TTL:         d.ttl,
		Priority:    d.priority,
		Payload:     payload,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		log.Error().Err(err).Str("topic", msg.Topic).Msg("Notification failed")
		return false
	}

	d.sent.Add(1)
	log.Info().Str("topic", msg.Topic).Msg("Notification sent")
	return true
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load()}
}

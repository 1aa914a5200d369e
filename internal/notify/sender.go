// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package notify

import (
	"context"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/logging"
)

// LogSender only logs. Used when no push transport is configured.
type LogSender struct{}

// Name implements Sender.
func (LogSender) Name() string { return "log" }

// Send implements Sender.
func (LogSender) Send(ctx context.Context, msg *Message) error {
	logging.Ctx(ctx).Info().
		Str("topic", msg.Topic).
		Str("collapse_key", msg.CollapseKey).
		Int("tier", msg.Payload.Goal.TierProgress.Current).
		Dur("ttl", msg.TTL).
		Msg("Notification (log transport)")
	return nil
}

// NewSender builds the transport selected by cfg.Transport.
func NewSender(ctx context.Context, cfg *config.NotifyConfig, userAgent string) (Sender, error) {
	switch cfg.Transport {
	case "fcm":
		return NewFCMSender(ctx, &cfg.FCM)
	case "webhook":
		return NewWebhookSender(&cfg.Webhook, userAgent), nil
	default:
		return LogSender{}, nil
	}
}

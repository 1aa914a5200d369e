// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/tomtom215/edcompanion/internal/config"
)

// messagingClient is the subset of *messaging.Client FCMSender uses.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender pushes to Firebase Cloud Messaging topics.
type FCMSender struct {
	client messagingClient
}

// NewFCMSender initializes a Firebase app from cfg. Without a credentials
// file the application default credentials are used.
func NewFCMSender(ctx context.Context, cfg *config.FCMConfig) (*FCMSender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// Name implements Sender.
func (s *FCMSender) Name() string { return "fcm" }

// Send implements Sender.
func (s *FCMSender) Send(ctx context.Context, msg *Message) error {
	fcmMsg, err := buildFCMMessage(msg)
	if err != nil {
		return err
	}
	if _, err := s.client.Send(ctx, fcmMsg); err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return fmt.Errorf("fcm rejected message for topic %s: %w", msg.Topic, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func buildFCMMessage(msg *Message) (*messaging.Message, error) {
	if msg.Topic == "" {
		return nil, errors.New("fcm message without topic")
	}
	data, err := msg.Payload.Data()
	if err != nil {
		return nil, fmt.Errorf("encode fcm data: %w", err)
	}

	android := &messaging.AndroidConfig{
		CollapseKey: msg.CollapseKey,
		Priority:    msg.Priority,
	}
	if msg.TTL > 0 {
		ttl := msg.TTL
		android.TTL = &ttl
	}

	return &messaging.Message{
		Topic:   msg.Topic,
		Data:    data,
		Android: android,
	}, nil
}

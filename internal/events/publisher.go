// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package events fans applied price writes out to a message bus so other
// services can react without polling the database.
package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/edcompanion/internal/breaker"
	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/models"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("publisher is closed")

// PricePublisher publishes PriceUpdatedEvent messages on one topic.
type PricePublisher struct {
	publisher message.Publisher
	topic     string
	cb        *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewPricePublisher wraps any watermill publisher.
func NewPricePublisher(pub message.Publisher, topic string) *PricePublisher {
	return &PricePublisher{
		publisher: pub,
		topic:     topic,
		cb:        breaker.New[struct{}](breaker.Settings{Name: "nats-publish", Timeout: 30 * time.Second}),
	}
}

// NewNATSPublisher connects to core NATS (JetStream disabled) and returns a
// publisher on cfg.Subject.
func NewNATSPublisher(cfg *config.NATSConfig) (*PricePublisher, error) {
	logger := NewLoggerAdapter()

	natsOpts := []natsgo.Option{
		natsgo.Name("edcompanion-eddn-listener"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return NewPricePublisher(pub, cfg.Subject), nil
}

// PublishPriceUpdated implements feed.PricePublisher.
func (p *PricePublisher) PublishPriceUpdated(ctx context.Context, event models.PriceUpdatedEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize price event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set("commodity", event.CommodityName)
	msg.Metadata.Set("station_id", strconv.FormatInt(event.StationID, 10))
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)

	_, err = p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish price event: %w", err)
	}
	return nil
}

// Close shuts the underlying publisher down once.
func (p *PricePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package feed subscribes to the EDDN relay and turns commodity messages
// into freshness-gated price writes.
//
// The Client is a three-state machine:
//
//	DISCONNECTED -> CONNECTING -> SUBSCRIBED -> (receive loop) -> DISCONNECTED
//
// Any connection fault (dial error, receive error, a receive that times out,
// an empty frame) closes the socket, waits ReconnectDelay and dials again,
// forever. Faults inside a single message never reach the state machine;
// the Handler logs them and the loop continues.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/edcompanion/internal/config"
	"github.com/tomtom215/edcompanion/internal/logging"
)

var (
	// ErrRecvTimeout means the relay was silent for the whole receive timeout.
	ErrRecvTimeout = errors.New("no message within receive timeout")
	// ErrEmptyMessage means the relay delivered a zero-length frame.
	ErrEmptyMessage = errors.New("empty message")
)

// State is the client's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Stats are cumulative counters since the client was created.
type Stats struct {
	Connects int64
	Faults   int64
	Messages int64
}

// Client keeps one subscription to the relay alive.
type Client struct {
	relay          string
	recvTimeout    time.Duration
	reconnectDelay time.Duration
	dialer         Dialer
	handler        MessageHandler

	state    atomic.Int32
	connects atomic.Int64
	faults   atomic.Int64
	messages atomic.Int64
}

// NewClient builds a client from the feed configuration.
func NewClient(cfg *config.FeedConfig, dialer Dialer, handler MessageHandler) *Client {
	return &Client{
		relay:          cfg.Relay,
		recvTimeout:    cfg.RecvTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		dialer:         dialer,
		handler:        handler,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connects: c.connects.Load(),
		Faults:   c.faults.Load(),
		Messages: c.messages.Load(),
	}
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Serve runs until ctx is cancelled and then returns ctx.Err().
// It implements suture.Service.
func (c *Client) Serve(ctx context.Context) error {
	logging.Info().Str("relay", c.relay).Dur("recv_timeout", c.recvTimeout).Msg("Market feed client starting")
	defer c.setState(Disconnected)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.faults.Add(1)
		logging.Warn().Err(err).
			Str("relay", c.relay).
			Dur("retry_in", c.reconnectDelay).
			Int64("faults", c.faults.Load()).
			Msg("Market feed connection lost, reconnecting")

		if !c.waitReconnect(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Client) String() string {
	return "market-feed-client"
}

// session dials, receives until a fault, and always leaves the client
// DISCONNECTED with the socket closed.
func (c *Client) session(ctx context.Context) error {
	c.setState(Connecting)
	conn, err := c.dialer.Dial(ctx, c.relay)
	if err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Error closing feed socket")
		}
		c.setState(Disconnected)
	}()

	c.setState(Subscribed)
	c.connects.Add(1)
	logging.Info().Str("relay", c.relay).Int64("connects", c.connects.Load()).Msg("Subscribed to market feed")

	for {
		data, err := c.recv(ctx, conn)
		if err != nil {
			return err
		}
		c.messages.Add(1)
		c.handler.HandleMessage(ctx, data)
	}
}

func (c *Client) recv(ctx context.Context, conn Conn) ([]byte, error) {
	recvCtx, cancel := context.WithTimeout(ctx, c.recvTimeout)
	defer cancel()

	data, err := conn.Recv(recvCtx)
	switch {
	case err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return nil, ErrRecvTimeout
	case err != nil:
		return nil, fmt.Errorf("receive: %w", err)
	case len(data) == 0:
		return nil, ErrEmptyMessage
	}
	return data, nil
}

func (c *Client) waitReconnect(ctx context.Context) bool {
	if c.reconnectDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

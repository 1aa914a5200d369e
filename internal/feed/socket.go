// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Conn is a subscribed feed connection.
type Conn interface {
	// Recv blocks for the next message until ctx is done.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens subscribed connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// ZMQDialer subscribes to a ZeroMQ PUB relay with an empty topic filter.
type ZMQDialer struct {
	DialTimeout time.Duration
}

// Dial connects a SUB socket and starts its reader.
func (d ZMQDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sockCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewSub(sockCtx, zmq4.WithDialerTimeout(timeout))

	dialed := make(chan error, 1)
	go func() { dialed <- sock.Dial(endpoint) }()

	select {
	case err := <-dialed:
		if err != nil {
			cancel()
			_ = sock.Close()
			return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
		}
	case <-ctx.Done():
		cancel()
		_ = sock.Close()
		return nil, ctx.Err()
	}

	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		cancel()
		_ = sock.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	c := &zmqConn{
		sock:   sock,
		cancel: cancel,
		msgs:   make(chan recvResult),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type recvResult struct {
	data []byte
	err  error
}

type zmqConn struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	msgs   chan recvResult
	done   chan struct{}
	once   sync.Once
}

// readLoop owns sock.Recv, which has no deadline of its own.
func (c *zmqConn) readLoop() {
	for {
		msg, err := c.sock.Recv()
		var data []byte
		if err == nil {
			data = msg.Bytes()
		}
		select {
		case c.msgs <- recvResult{data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *zmqConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case r := <-c.msgs:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	}
}

func (c *zmqConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.cancel()
		err = c.sock.Close()
	})
	return err
}

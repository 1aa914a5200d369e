// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package services

import (
	"context"
	"fmt"
	"io"
	"time"
)

// CloserService keeps an io.Closer open for the lifetime of the tree and
// closes it on shutdown. It adapts components with an open-then-Close
// lifecycle, such as the NATS price publisher, to suture's Serve pattern.
type CloserService struct {
	closer          io.Closer
	name            string
	shutdownTimeout time.Duration
}

// NewCloserService wraps c under name.
func NewCloserService(name string, c io.Closer) *CloserService {
	return &CloserService{closer: c, name: name, shutdownTimeout: 10 * time.Second}
}

// Serve implements suture.Service.
func (s *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()

	done := make(chan error, 1)
	go func() { done <- s.closer.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s close failed: %w", s.name, err)
		}
	case <-time.After(s.shutdownTimeout):
		return fmt.Errorf("%s close timed out after %v", s.name, s.shutdownTimeout)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *CloserService) String() string {
	return s.name
}

// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

// Package breaker builds sony/gobreaker circuit breakers with the
// daemons' trip policy and state-change logging.
package breaker

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/edcompanion/internal/logging"
)

// Settings tunes one breaker. Zero values take the defaults below.
type Settings struct {
	Name string

	// MaxRequests is allowed through while half-open. Default 3.
	MaxRequests uint32
	// Interval resets counts while closed. Default 1m.
	Interval time.Duration
	// Timeout is spent open before probing. Default 2m.
	Timeout time.Duration
	// MinRequests must be seen before the ratio is considered. Default 10.
	MinRequests uint32
	// FailureRatio opens the breaker. Default 0.6.
	FailureRatio float64
}

func (s *Settings) applyDefaults() {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Minute
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
}

// New returns a breaker that opens once FailureRatio of at least
// MinRequests calls failed.
func New[T any](s Settings) *gobreaker.CircuitBreaker[T] {
	s.applyDefaults()

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logging.Warn().
					Str("breaker", s.Name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit state transition")
		},
	})
}

// IsRejection reports whether err came from the breaker itself rather than
// the protected call.
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

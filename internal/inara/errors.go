// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package inara

import (
	"errors"
	"fmt"
)

// ErrContentFetch matches every *ContentFetchError via errors.Is.
var ErrContentFetch = errors.New("cannot fetch community goals from inara")

// Fetch stages reported by ContentFetchError.
const (
	StageHTTP    = "http"
	StageStatus  = "status"
	StageDecode  = "decode"
	StageBreaker = "breaker"
)

// ContentFetchError reports why the goals snapshot could not be obtained.
type ContentFetchError struct {
	Stage      string
	StatusCode int
	Err        error
}

func (e *ContentFetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("inara %s (status %d): %v", e.Stage, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("inara %s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("inara %s: status %d", e.Stage, e.StatusCode)
	}
}

func (e *ContentFetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrContentFetch) hold for any stage.
func (e *ContentFetchError) Is(target error) bool {
	return target == ErrContentFetch
}

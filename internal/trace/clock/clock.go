// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clock provides the timestamp source for trace events.
//
// Timestamps are microseconds since the Unix epoch, read from the system
// wall clock. They are monotonic only in practice: two goroutines reading
// the clock concurrently may observe values that disagree with the order
// in which their events were sequenced.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time in microseconds.
//
// Implementations must be safe for concurrent use and must not block.
type Clock interface {
	NowMicros() uint64
}

// System reads the wall clock.
type System struct{}

// NowMicros returns microseconds since the Unix epoch.
func (System) NowMicros() uint64 {
	//nolint:gosec // G115: wall clock is after 1970, UnixMicro is positive
	return uint64(time.Now().UnixMicro())
}

// Default is the clock used when no other clock is configured.
var Default Clock = System{}

// Manual is a clock that only moves when told to.
//
// It is meant for tests that need deterministic timestamps. All methods
// are safe for concurrent use.
type Manual struct {
	now atomic.Uint64
}

// NewManual creates a Manual clock reading start.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

// NowMicros returns the current manual time.
func (m *Manual) NowMicros() uint64 {
	return m.now.Load()
}

// Set moves the clock to t.
func (m *Manual) Set(t uint64) {
	m.now.Store(t)
}

// Advance moves the clock forward by d microseconds and returns the new time.
func (m *Manual) Advance(d uint64) uint64 {
	return m.now.Add(d)
}

// Elapsed returns end-start, or 0 if the clock went backwards.
func Elapsed(start, end uint64) uint64 {
	if end < start {
		return 0
	}
	return end - start
}

// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recorder

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/lzy107/functrace/internal/trace/clock"
	"github.com/lzy107/functrace/internal/trace/event"
)

// DefaultCapacity is the buffer size used when New is given capacity <= 0.
const DefaultCapacity = 1 << 16

// ErrDrained is returned by Drain when the buffer has already been drained.
var ErrDrained = errors.New("recorder: buffer already drained")

// Slot states. A slot moves from empty to exactly one of the other two.
const (
	slotEmpty     uint32 = iota // claimed or unclaimed, not yet visible
	slotReady                   // event fully written and published
	slotAbandoned               // claimed after Drain, never written
)

// slot is one buffer cell.
//
// The writer that claimed the slot fills ev and then stores slotReady.
// The atomic store is the publication barrier: a reader that observes
// slotReady also observes every field of ev.
type slot struct {
	state atomic.Uint32
	ev    event.Event
}

// Stats is a point-in-time view of the recorder counters.
//
// Each field is read atomically, but the fields are not read as one
// transaction: while recording is in progress they may be off by the
// number of in-flight calls.
type Stats struct {
	Entries  uint64 // Record calls with KindEntry
	Exits    uint64 // Record calls with KindExit
	Attempts uint64 // sequence ids handed out
	Recorded uint64 // events stored and published
	Dropped  uint64 // events not stored (buffer full or drained)
	Capacity uint64
}

// Recorder is a fixed-capacity, lock-free event log.
//
// Any number of goroutines may call Record concurrently. Each call claims
// its slot with a single fetch-and-add on a shared counter; that counter
// also supplies the sequence id. Past capacity the counter keeps advancing
// and the event is dropped, so drops show up as gaps at the end of the
// sequence id range. Record never blocks.
type Recorder struct {
	clock clock.Clock
	slots []slot

	next     atomic.Uint64
	entries  atomic.Uint64
	exits    atomic.Uint64
	recorded atomic.Uint64
	dropped  atomic.Uint64
	drained  atomic.Bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the timestamp source. The default is clock.Default.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// New creates an empty Recorder holding up to capacity events.
// A capacity <= 0 selects DefaultCapacity.
func New(capacity int, opts ...Option) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{
		clock: clock.Default,
		slots: make([]slot, capacity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event and returns its sequence id.
//
// stored is false when the event was dropped because the buffer is full
// or has been drained. The sequence id is consumed either way.
func (r *Recorder) Record(kind event.Kind, fn, caller uintptr, tid uint64, depth int64) (seq uint64, stored bool) {
	if kind == event.KindEntry {
		r.entries.Add(1)
	} else {
		r.exits.Add(1)
	}

	ts := r.clock.NowMicros()
	seq = r.next.Add(1) - 1

	if seq >= uint64(len(r.slots)) {
		r.dropped.Add(1)
		return seq, false
	}

	s := &r.slots[seq]
	if r.drained.Load() {
		s.state.Store(slotAbandoned)
		r.dropped.Add(1)
		return seq, false
	}

	s.ev = event.Event{
		Kind:      kind,
		Func:      fn,
		Caller:    caller,
		Timestamp: ts,
		ThreadID:  tid,
		Depth:     depth,
		Seq:       seq,
	}
	s.state.Store(slotReady)
	r.recorded.Add(1)
	return seq, true
}

// Stats returns the current counters. Safe to call at any time.
func (r *Recorder) Stats() Stats {
	return Stats{
		Entries:  r.entries.Load(),
		Exits:    r.exits.Load(),
		Attempts: r.next.Load(),
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Capacity: uint64(len(r.slots)),
	}
}

// Capacity returns the number of slots.
func (r *Recorder) Capacity() int {
	return len(r.slots)
}

// Drained reports whether Drain has been called.
func (r *Recorder) Drained() bool {
	return r.drained.Load()
}

// Snapshot returns a copy of the events published so far, in sequence
// order. Slots claimed but not yet published are skipped. Safe to call
// concurrently with Record.
func (r *Recorder) Snapshot() []event.Event {
	n := r.claimed()
	out := make([]event.Event, 0, n)
	for i := uint64(0); i < n; i++ {
		s := &r.slots[i]
		if s.state.Load() == slotReady {
			out = append(out, s.ev)
		}
	}
	return out
}

// Drain returns every stored event in sequence order and closes the
// buffer. It succeeds exactly once; later calls return ErrDrained.
//
// Events recorded after Drain starts are dropped. Drain waits for writers
// that claimed a slot before that point to publish it, which takes a few
// instructions per writer.
func (r *Recorder) Drain() ([]event.Event, error) {
	if !r.drained.CompareAndSwap(false, true) {
		return nil, ErrDrained
	}

	n := r.claimed()
	out := make([]event.Event, 0, n)
	for i := uint64(0); i < n; i++ {
		s := &r.slots[i]
		st := s.state.Load()
		for st == slotEmpty {
			runtime.Gosched()
			st = s.state.Load()
		}
		if st == slotReady {
			out = append(out, s.ev)
		}
	}
	return out, nil
}

// claimed returns the number of slot indices handed out, capped at capacity.
func (r *Recorder) claimed() uint64 {
	return min(r.next.Load(), uint64(len(r.slots)))
}

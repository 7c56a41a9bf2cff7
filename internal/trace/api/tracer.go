// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"

	"github.com/lzy107/functrace/internal/config"
	"github.com/lzy107/functrace/internal/trace/clock"
	"github.com/lzy107/functrace/internal/trace/event"
	"github.com/lzy107/functrace/internal/trace/export"
	"github.com/lzy107/functrace/internal/trace/goid"
	"github.com/lzy107/functrace/internal/trace/goroutine"
	"github.com/lzy107/functrace/internal/trace/recorder"
)

// ErrFinished is returned by Finish and Fini after the first call.
var ErrFinished = errors.New("tracer already finished")

// cleanupInterval is the number of context allocations between scans for
// dead goroutines.
const cleanupInterval = 1000

// Stats extends the recorder counters with tracer state.
type Stats struct {
	recorder.Stats
	Contexts int    // goroutines with a cached context
	Faults   uint64 // panics absorbed inside hook bodies
}

// Tracer owns one trace session: the buffer, the per-goroutine contexts
// and the configuration. Its hook methods are safe for concurrent use.
type Tracer struct {
	cfg    config.Config
	clock  clock.Clock
	rec    *recorder.Recorder
	start  uint64
	log    *slog.Logger
	stderr io.Writer

	enabled  atomic.Bool
	finished atomic.Bool

	// contexts maps goroutine ids to their TraceContext.
	// Key: int64 (goroutine ID)
	// Value: *goroutine.TraceContext.
	contexts sync.Map
	nctx     atomic.Int64
	allocs   atomic.Uint64
	faults   atomic.Uint64
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the timestamp source for the session.
func WithClock(c clock.Clock) Option {
	return func(t *Tracer) { t.clock = c }
}

// WithLogger sets the logger used by Fini and cleanup.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) { t.log = l }
}

// WithStderr sets where Fini prints its summary.
func WithStderr(w io.Writer) Option {
	return func(t *Tracer) { t.stderr = w }
}

// New creates a Tracer for cfg. Recording starts immediately when
// cfg.Enabled is set.
func New(cfg config.Config, opts ...Option) *Tracer {
	t := &Tracer{
		cfg:    cfg,
		clock:  clock.Default,
		log:    slog.Default(),
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.rec = recorder.New(cfg.Capacity, recorder.WithClock(t.clock))
	t.start = t.clock.NowMicros()
	t.enabled.Store(cfg.Enabled)
	return t
}

// FuncEnter is the function-entry hook.
//
// Flow:
//  1. Check the enabled flag (atomic load)
//  2. Get or create the TraceContext of the calling goroutine
//  3. Take the recursion guard, or return if a hook is already running
//  4. Read the pre-increment depth and record the event
//
// Never blocks and never panics into the caller.
func (t *Tracer) FuncEnter(fn, caller uintptr) {
	t.hook(event.KindEntry, fn, caller)
}

// FuncExit is the function-exit hook. The recorded depth is the value
// after the decrement, which equals the depth of the matching entry.
func (t *Tracer) FuncExit(fn, caller uintptr) {
	t.hook(event.KindExit, fn, caller)
}

func (t *Tracer) hook(kind event.Kind, fn, caller uintptr) {
	if !t.enabled.Load() {
		return
	}

	tc := t.context()
	if !tc.Enter() {
		return
	}
	defer t.leave(tc)

	var depth int64
	if kind == event.KindEntry {
		depth = tc.OnEnter()
	} else {
		depth = tc.OnExit()
	}
	t.rec.Record(kind, fn, caller, uint64(tc.GID), depth)
}

// leave releases the guard and absorbs any panic raised by the hook body.
func (t *Tracer) leave(tc *goroutine.TraceContext) {
	tc.Leave()
	if r := recover(); r != nil {
		t.faults.Add(1)
	}
}

// context returns the TraceContext of the calling goroutine, creating it
// on first use.
//
// Fast path: sync.Map lookup. Slow path: allocate with the next
// generation, store and every cleanupInterval allocations scan for dead
// goroutines in the background.
func (t *Tracer) context() *goroutine.TraceContext {
	gid := goid.Current()
	if v, ok := t.contexts.Load(gid); ok {
		return v.(*goroutine.TraceContext)
	}

	// Only the goroutine gid allocates for gid, so the store never loses.
	gen := t.allocs.Add(1)
	tc := goroutine.Alloc(gid)
	tc.Gen = gen
	t.contexts.Store(gid, tc)
	t.nctx.Add(1)

	if gen%cleanupInterval == 0 {
		go t.cleanup()
	}
	return tc
}

// cleanup drops the contexts of goroutines that have exited.
//
// The generation horizon is read before the live set is taken. A context
// at or below the horizon belonged to a goroutine that was running before
// goid.Live was called, so its absence from the live set means it exited.
// Newer contexts may belong to goroutines started after the snapshot and
// are left for the next scan. Goroutine ids are never reused, so a dead id
// never comes back.
func (t *Tracer) cleanup() int {
	horizon := t.allocs.Load()
	return t.sweep(horizon, goid.Live())
}

// sweep deletes the contexts with Gen <= horizon whose goroutine is not
// in live.
func (t *Tracer) sweep(horizon uint64, live []int64) int {
	liveSet := make(map[int64]struct{}, len(live))
	for _, gid := range live {
		liveSet[gid] = struct{}{}
	}

	removed := 0
	t.contexts.Range(func(key, value any) bool {
		if value.(*goroutine.TraceContext).Gen > horizon {
			return true
		}
		gid := key.(int64)
		if _, ok := liveSet[gid]; !ok {
			t.contexts.Delete(gid)
			t.nctx.Add(-1)
			removed++
		}
		return true
	})
	t.log.Debug("trace context cleanup", "live", len(live), "horizon", horizon, "removed", removed)
	return removed
}

// Enable resumes recording.
func (t *Tracer) Enable() { t.enabled.Store(true) }

// Disable pauses recording. Depth is not tracked while disabled.
func (t *Tracer) Disable() { t.enabled.Store(false) }

// Enabled reports whether the hooks are recording.
func (t *Tracer) Enabled() bool { return t.enabled.Load() }

// Finished reports whether Finish or Fini has run.
func (t *Tracer) Finished() bool { return t.finished.Load() }

// Config returns the session configuration.
func (t *Tracer) Config() config.Config { return t.cfg }

// Stats returns the current counters. Safe to call while recording.
func (t *Tracer) Stats() Stats {
	return Stats{
		Stats:    t.rec.Stats(),
		Contexts: int(t.nctx.Load()),
		Faults:   t.faults.Load(),
	}
}

// Events returns the events recorded so far without draining the buffer.
func (t *Tracer) Events() []event.Event {
	return t.rec.Snapshot()
}

// Finish stops recording, drains the buffer and builds the trace
// document. It succeeds once per Tracer.
func (t *Tracer) Finish() (*export.Document, error) {
	if !t.finished.CompareAndSwap(false, true) {
		return nil, ErrFinished
	}
	t.enabled.Store(false)

	events, err := t.rec.Drain()
	if err != nil {
		return nil, fmt.Errorf("drain trace buffer: %w", err)
	}
	total := clock.Elapsed(t.start, t.clock.NowMicros())
	st := t.rec.Stats()
	return export.NewDocument(events, total, st.Dropped), nil
}

// Fini finishes the session, writes the trace file named by the
// configuration and prints a summary. A failed export is logged and
// returned; it never terminates the process.
func (t *Tracer) Fini() error {
	doc, err := t.Finish()
	if err != nil {
		return err
	}

	format, err := t.cfg.TraceFormat()
	if err != nil {
		format = export.FormatAuto
	}
	path := t.cfg.Output
	if err := export.WriteFile(path, doc, format); err != nil {
		t.log.Error("trace export failed", "path", path, "err", err)
		t.report(doc, "")
		return err
	}
	t.log.Debug("trace exported", "path", path, "format", format.Resolve(path), "records", len(doc.Records))
	t.report(doc, path)
	return nil
}

// report prints the end-of-run summary to stderr.
func (t *Tracer) report(doc *export.Document, path string) {
	st := t.rec.Stats()
	bold := color.New(color.Bold)
	warn := color.New(color.FgYellow, color.Bold)

	fmt.Fprintf(t.stderr, "\n")
	fmt.Fprintf(t.stderr, "==================\n")
	bold.Fprintf(t.stderr, "Function Trace Report\n")
	fmt.Fprintf(t.stderr, "==================\n")
	fmt.Fprintf(t.stderr, "Events recorded: %d (%d entries, %d exits)\n", doc.Recorded, st.Entries, st.Exits)
	if doc.Dropped > 0 {
		warn.Fprintf(t.stderr, "WARNING: %d event(s) dropped (capacity %d)\n", doc.Dropped, st.Capacity)
	}
	fmt.Fprintf(t.stderr, "Total time: %dus\n", doc.TotalTime)
	if path != "" {
		fmt.Fprintf(t.stderr, "Trace written to %s\n", path)
	} else {
		warn.Fprintf(t.stderr, "Trace was not written, see log for details.\n")
	}
	fmt.Fprintf(t.stderr, "==================\n\n")
}

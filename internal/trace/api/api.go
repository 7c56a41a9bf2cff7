// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api provides the process-wide runtime for the function tracer.
//
// Instrumented code calls funcenter and funcexit, through the public
// trace package, on every function entry and exit. These are CRITICAL
// HOT PATHS: they run synchronously on the traced goroutine and must
// never block or panic.
//
// The session state lives in one Tracer. Init installs it; hooks that
// fire before Init install one lazily from the environment
// configuration (FUNCTRACE_*), so the first event of a program is never
// lost. Fini drains the buffer and exports the trace exactly once.
//
// Hook contract:
//
// Both hooks receive the entry address of the instrumented function and
// the address of its call site. They may run on any goroutine, including
// one never seen before: such a goroutine gets a fresh context at depth 0.
// While a hook runs, the recursion guard of the calling goroutine is held,
// so instrumented code reached from inside the hook (a user clock, say)
// re-enters, finds the guard held and returns without recording.
//
// Failures are absorbed: a full buffer is a dropped event, a panic in the
// hook body is counted in Stats.Faults, and a failed export is reported by
// Fini on the log and stderr only.
//
// Performance:
//   - funcenter/funcexit (context cached): one goroutine id lookup plus one
//     atomic fetch-and-add on the shared buffer
//   - context lookup (first call per goroutine): allocation + sync.Map store
package api

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/lzy107/functrace/internal/config"
	"github.com/lzy107/functrace/internal/trace/event"
)

// ErrNotInitialized is returned by Fini when no session is active.
var ErrNotInitialized = errors.New("tracer not initialized")

// std is the process-wide session.
var std atomic.Pointer[Tracer]

// Init starts a new process-wide session, replacing any previous one.
func Init(cfg config.Config, opts ...Option) *Tracer {
	t := New(cfg, opts...)
	std.Store(t)
	slog.Debug("tracer initialized",
		"capacity", t.rec.Capacity(),
		"output", cfg.Output,
		"enabled", cfg.Enabled)
	return t
}

// Current returns the process-wide session, creating one from the
// environment if none exists.
func Current() *Tracer {
	if t := std.Load(); t != nil {
		return t
	}

	t := fromEnv()
	if std.CompareAndSwap(nil, t) {
		return t
	}
	return std.Load()
}

// Start returns the process-wide session like Current, but replaces a
// session that Fini already finished with a fresh one from the
// environment. Hooks keep using Current, so events arriving after Fini
// do not open a session nobody exports.
func Start() *Tracer {
	for {
		old := std.Load()
		if old != nil && !old.Finished() {
			return old
		}
		t := fromEnv()
		if std.CompareAndSwap(old, t) {
			if old != nil {
				slog.Debug("tracer restarted after Fini")
			}
			return t
		}
	}
}

func fromEnv() *Tracer {
	cfg, err := config.LoadEnv()
	if err != nil {
		slog.Warn("invalid tracer environment, using defaults", "err", err)
		cfg = config.Default()
	}
	return New(cfg)
}

// funcenter is called on entry to every instrumented function.
//
// fn is the entry address of the function and caller the call site.
// Both are opaque and never dereferenced.
func funcenter(fn, caller uintptr) {
	Current().hook(event.KindEntry, fn, caller)
}

// funcexit is called on exit from every instrumented function with the
// same addresses as the matching funcenter.
func funcexit(fn, caller uintptr) {
	Current().hook(event.KindExit, fn, caller)
}

// FuncEnter records a function entry on the process-wide session.
func FuncEnter(fn, caller uintptr) {
	funcenter(fn, caller)
}

// FuncExit records a function exit on the process-wide session.
func FuncExit(fn, caller uintptr) {
	funcexit(fn, caller)
}

// Fini finishes the process-wide session and exports the trace.
func Fini() error {
	t := std.Load()
	if t == nil {
		return ErrNotInitialized
	}
	return t.Fini()
}

// Reset discards the process-wide session without exporting it.
// The next hook or Init starts a fresh one. Used between tests.
func Reset() {
	std.Store(nil)
}

// Enable resumes recording on the process-wide session.
func Enable() {
	Current().Enable()
}

// Disable pauses recording on the process-wide session.
func Disable() {
	Current().Disable()
}

// CurrentStats returns the counters of the process-wide session.
func CurrentStats() Stats {
	return Current().Stats()
}

// Events returns the events recorded so far by the process-wide session.
func Events() []event.Event {
	return Current().Events()
}

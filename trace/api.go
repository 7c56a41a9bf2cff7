// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace provides the public API of the function tracer.
//
// See doc.go for detailed documentation and examples.
package trace

import (
	"runtime"

	"github.com/lzy107/functrace/internal/config"
	internal "github.com/lzy107/functrace/internal/trace/api"
	"github.com/lzy107/functrace/internal/trace/event"
)

// Config is the tracer configuration accepted by InitWithConfig.
type Config = config.Config

// Stats holds the tracer counters returned by [Stats].
type Stats = internal.Stats

// Event is one recorded function entry or exit.
type Event = event.Event

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return config.Default()
}

// Init starts tracing with the configuration taken from the FUNCTRACE_*
// environment variables (and the file named by FUNCTRACE_CONFIG).
//
// The functrace tool automatically inserts this call at the beginning of
// the main() function. If hooks already fired (in package init functions,
// say) the session they started is kept, so those events are not lost.
// After Fini, Init starts a new session that Fini will export again.
//
// For manual instrumentation, call Init() at program startup:
//
//	func main() {
//		trace.Init()
//		defer trace.Fini()
//		// ... rest of program
//	}
func Init() {
	internal.Start()
}

// InitWithConfig starts a new tracing session with cfg, discarding any
// session in progress. An invalid cfg is rejected and tracing is left
// unchanged.
func InitWithConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	internal.Init(cfg)
	return nil
}

// Fini stops tracing, writes the trace file and prints a summary to
// stderr. It runs once; later calls return an error.
//
// Export failures are logged and returned but never terminate the
// program, so the usual form is simply:
//
//	defer trace.Fini()
func Fini() error {
	return internal.Fini()
}

// FuncEnter records entry into the function at fn, called from caller.
// Both are opaque addresses. Safe to call from any goroutine.
func FuncEnter(fn, caller uintptr) {
	internal.FuncEnter(fn, caller)
}

// FuncExit records exit from the function at fn. It takes the same
// addresses as the matching FuncEnter.
func FuncExit(fn, caller uintptr) {
	internal.FuncExit(fn, caller)
}

// Frame identifies one traced call. It is returned by Enter and closed
// by its Exit method.
type Frame struct {
	fn     uintptr
	caller uintptr
}

// Enter records entry into the calling function and returns the frame to
// close on return. Instrumented code uses it as the first statement of
// every function:
//
//	func work() {
//		defer trace.Enter().Exit()
//		...
//	}
//
// The function address is the entry PC of the caller and the caller
// address is the call site one frame further up.
//
//go:noinline
func Enter() Frame {
	var pcs [2]uintptr
	n := runtime.Callers(2, pcs[:])
	f := resolve(pcs[:n])
	internal.FuncEnter(f.fn, f.caller)
	return f
}

// Exit records exit from the frame's function.
func (f Frame) Exit() {
	internal.FuncExit(f.fn, f.caller)
}

// Func returns the entry address of the traced function.
func (f Frame) Func() uintptr { return f.fn }

// Caller returns the call-site address.
func (f Frame) Caller() uintptr { return f.caller }

func resolve(pcs []uintptr) Frame {
	var f Frame
	if len(pcs) == 0 {
		return f
	}

	frames := runtime.CallersFrames(pcs)
	self, more := frames.Next()
	f.fn = self.Entry
	if f.fn == 0 {
		f.fn = self.PC
	}
	if more {
		up, _ := frames.Next()
		f.caller = up.PC
	}
	return f
}

// Enable resumes recording.
func Enable() {
	internal.Enable()
}

// Disable pauses recording. Call depth is not tracked while disabled.
func Disable() {
	internal.Disable()
}

// GetStats returns the current counters. Safe to call while recording.
func GetStats() Stats {
	return internal.CurrentStats()
}

// Events returns the events recorded so far without ending the session.
func Events() []Event {
	return internal.Events()
}

func currentEnabled() bool {
	return internal.Current().Enabled()
}

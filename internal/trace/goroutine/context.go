// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goroutine

// TraceContext holds the tracing state of a single goroutine.
//
// Each goroutine has its own TraceContext. It is created lazily the first
// time the goroutine hits an instrumentation hook and is only ever touched
// by that goroutine, so none of its fields need synchronization.
//
// Layout:
//   - GID: goroutine id the context belongs to (also the exported thread id)
//   - Gen: allocation number assigned by the owner of the context cache
//   - active: recursion guard, true while a hook body is running
//   - depth: current call depth, 0 at goroutine start
//
// Invariant: outside of a hook body, active is false.
type TraceContext struct {
	// GID is the goroutine identifier, opaque to everything but the exporter.
	GID int64

	// Gen orders contexts by allocation. It is set before the context is
	// published and never changes, so other goroutines may read it.
	Gen uint64

	active bool
	depth  int64
}

// Alloc creates a TraceContext for the given goroutine.
//
// The context starts at depth 0 with the guard released, which is the
// right state for a goroutine seen for the first time, even when that
// first sighting happens deep inside an untraced call chain.
func Alloc(gid int64) *TraceContext {
	return &TraceContext{GID: gid}
}

// Enter acquires the recursion guard.
//
// It returns true and marks the context active if no hook body is running
// on this goroutine. It returns false and changes nothing if one is: the
// caller must then return immediately, dropping the nested event.
//
// Enter calls no instrumented code.
//
//go:nosplit
func (tc *TraceContext) Enter() bool {
	if tc.active {
		return false
	}
	tc.active = true
	return true
}

// Leave releases the recursion guard.
//
//go:nosplit
func (tc *TraceContext) Leave() {
	tc.active = false
}

// Active reports whether a hook body is running on this goroutine.
func (tc *TraceContext) Active() bool {
	return tc.active
}

// OnEnter returns the depth before the call and then increments it.
//
// Example:
//
//	tc := Alloc(7)
//	tc.OnEnter() // 0, depth is now 1
//	tc.OnEnter() // 1, depth is now 2
//	tc.OnExit()  // 1, depth is now 1
//	tc.OnExit()  // 0, depth is now 0
//
//go:nosplit
func (tc *TraceContext) OnEnter() int64 {
	d := tc.depth
	tc.depth++
	return d
}

// OnExit decrements the depth and returns the new value.
//
// An entry recorded at depth d is therefore matched by an exit at depth d.
// No bound is enforced: an exit whose entry was never seen drives the
// depth negative instead of failing.
//
//go:nosplit
func (tc *TraceContext) OnExit() int64 {
	tc.depth--
	return tc.depth
}

// Depth returns the current call depth.
func (tc *TraceContext) Depth() int64 {
	return tc.depth
}

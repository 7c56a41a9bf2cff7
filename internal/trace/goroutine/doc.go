// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goroutine implements per-goroutine tracing state.
//
// TraceContext combines the two pieces of state that must never be shared
// between goroutines:
//   - the recursion guard, which keeps the tracer's own work (timestamping,
//     slot allocation, anything instrumented that it happens to call) from
//     re-entering the hooks
//   - the call-depth counter, incremented on entry and decremented on exit
//
// Because each goroutine owns its context exclusively, all operations are
// plain field accesses with no atomics or locks.
//
// Performance requirements:
//   - Enter()/Leave(): <1ns (field read/write)
//   - OnEnter()/OnExit(): <1ns (field increment/decrement)
package goroutine

// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace records every function entry and exit of an instrumented
// Go program and writes the trace to a file when the program ends.
//
// # Quick Start
//
// The trace package is automatically injected by the functrace tool:
//
//	$ functrace build -o myprogram .
//	$ ./myprogram
//	$ functrace inspect trace.json
//
// For manual instrumentation:
//
//	package main
//
//	import functrace "github.com/lzy107/functrace/trace"
//
//	func work() {
//		defer functrace.Enter().Exit()
//		// ...
//	}
//
//	func main() {
//		functrace.Init()
//		defer functrace.Fini()
//		defer functrace.Enter().Exit()
//		work()
//	}
//
// # API Overview
//
// The package provides functions for:
//   - Initialization and finalization: [Init], [InitWithConfig], [Fini]
//   - Hooks: [Enter] with [Frame.Exit], or [FuncEnter] and [FuncExit]
//     when the caller already has the addresses
//   - Diagnostics: [GetStats], [Events], [Enable], [Disable]
//   - Version information: [GetInfo], [Version]
//
// # What Is Recorded
//
// Each event carries its kind (entry or exit), the function and call-site
// addresses, a microsecond wall-clock timestamp, the goroutine id, the
// call depth and a sequence id. The sequence id comes from one shared
// atomic counter: ids are unique and strictly increasing across all
// goroutines. Depth is tracked per goroutine; an entry records the depth
// before the call and the matching exit records the same value.
//
// The buffer has a fixed capacity (FUNCTRACE_CAPACITY, 65536 by default).
// Past capacity events are dropped without blocking and the sequence
// counter keeps advancing, so drops are visible as missing ids and in the
// dropped total of the trace file.
//
// # Configuration
//
// Init reads its settings from the environment:
//
//	FUNCTRACE_CONFIG     TOML or YAML file with the settings below
//	FUNCTRACE_CAPACITY   buffer slots
//	FUNCTRACE_OUTPUT     trace file (default trace.json)
//	FUNCTRACE_FORMAT     auto, json or msgpack (auto: .msgpack/.mp => msgpack)
//	FUNCTRACE_ENABLED    record from the start (default true)
//	FUNCTRACE_LOG_LEVEL  debug, info, warn or error
//
// # Examples
//
// See package-level examples in the documentation:
//   - [Example] - Manual hooks with an explicit configuration
//   - [Example_automaticInstrumentation] - What the tool inserts
package trace

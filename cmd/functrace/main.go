// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main implements the functrace CLI tool.
//
// The functrace tool records function entries and exits of Go programs
// without any change to their sources. It works by:
//
//  1. Parsing Go source files using go/ast
//  2. Inserting `defer functrace.Enter().Exit()` into every function body
//  3. Linking the tracer runtime through a generated go.mod
//  4. Building/running the instrumented code
//
// Usage:
//
//	functrace build -o app .          # Build with tracing
//	functrace run main.go             # Run with tracing
//	functrace instrument main.go      # Print instrumented source
//	functrace inspect trace.json      # Verify and summarize a trace
//	functrace demo                    # Trace a small concurrent workload
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), msg)
		}
		os.Exit(GetExitCode(err))
	}
}

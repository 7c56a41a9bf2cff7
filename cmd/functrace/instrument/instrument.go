// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package instrument implements AST-level instrumentation for automatic
// function entry/exit hook insertion.
//
// This package provides the core functionality of the functrace tool. It
// parses Go source files, walks the AST to find function bodies and
// inserts a deferred hook pair at the top of each one.
//
// Algorithm:
//  1. Parse Go source file using go/parser
//  2. Walk AST to find function declarations and function literals
//  3. Prepend `defer functrace.Enter().Exit()` to each body
//  4. In main.main, also prepend functrace.Init() and defer functrace.Fini()
//  5. Inject the trace package import if any hook was inserted
//  6. Generate instrumented code using go/printer
//
// Example Transformation:
//
//	// INPUT (original code):
//	func work(n int) int {
//		return n * 2
//	}
//
//	// OUTPUT (instrumented code):
//	import functrace "github.com/lzy107/functrace/trace"
//
//	func work(n int) int {
//		defer functrace.Enter().Exit()
//		return n * 2
//	}
//
// Functions whose doc comment carries the //functrace:skip directive, or
// the //go:nosplit directive, are left untouched together with the
// function literals they contain.
//
// Thread Safety: This package is NOT thread-safe. Callers must ensure
// single-threaded access or use external synchronization.
package instrument

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
)

const (
	// TracePackageImportPath is the import path of the tracer API
	// injected into instrumented files.
	TracePackageImportPath = "github.com/lzy107/functrace/trace"

	// TracePackageAlias is the local package name used in instrumented
	// code. It avoids clashing with runtime/trace.
	TracePackageAlias = "functrace"

	// SkipDirective excludes a function from instrumentation.
	SkipDirective = "//functrace:skip"
)

// InstrumentResult holds the result of instrumentation.
//
//nolint:revive // InstrumentResult is clear and descriptive despite stuttering
type InstrumentResult struct {
	Code    string          // Instrumented source code
	Stats   InstrumentStats // Instrumentation statistics
	Changed bool            // false when the file was returned as is
}

// InstrumentFile instruments a single Go source file with trace hooks.
//
// Parameters:
//   - filename: Path to the Go source file (used for error messages)
//   - src: Source code to instrument. Can be:
//   - nil: Read from filename
//   - []byte: Use provided bytes
//   - string: Use provided string
//   - io.Reader: Read from reader
//
// Generated files (// Code generated ... DO NOT EDIT.) and files without
// any function body are returned unchanged. Instrumenting an already
// instrumented file inserts nothing new.
//
// Example:
//
//	result, err := InstrumentFile("main.go", nil)
//	if err != nil {
//	    log.Fatalf("Instrumentation failed: %v", err)
//	}
//	fmt.Printf("Instrumented %d functions, %d literals\n",
//	    result.Stats.Functions, result.Stats.Literals)
//
//nolint:revive // InstrumentFile is the standard API naming for this operation
func InstrumentFile(filename string, src interface{}) (*InstrumentResult, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filename, err)
	}

	if ast.IsGenerated(file) {
		code, err := render(fset, file)
		if err != nil {
			return nil, err
		}
		return &InstrumentResult{Code: code, Stats: InstrumentStats{Generated: true}}, nil
	}

	alias, err := resolveAlias(fset, file)
	if err != nil {
		return nil, err
	}

	visitor := instrumentAST(file, alias)
	stats := visitor.GetStats()

	if stats.Total() > 0 {
		injectImport(file, alias)
	}

	code, err := render(fset, file)
	if err != nil {
		return nil, err
	}
	return &InstrumentResult{
		Code:    code,
		Stats:   stats,
		Changed: stats.Total() > 0,
	}, nil
}

// instrumentAST walks the AST and inserts hooks into every eligible body.
//
// Pass 1 (Visit): collect hook points, one per function body.
// Pass 2 (Apply): prepend the hook statements to each collected body.
//
// Collecting first keeps the walk from visiting the statements it inserts.
func instrumentAST(file *ast.File, alias string) *instrumentVisitor {
	visitor := newInstrumentVisitor(file, alias)
	ast.Walk(visitor, file)
	visitor.ApplyInstrumentation()
	return visitor
}

func render(fset *token.FileSet, file *ast.File) (string, error) {
	var buf bytes.Buffer
	cfg := &printer.Config{
		Mode:     printer.UseSpaces | printer.TabIndent,
		Tabwidth: 8,
	}
	if err := cfg.Fprint(&buf, fset, file); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return buf.String(), nil
}

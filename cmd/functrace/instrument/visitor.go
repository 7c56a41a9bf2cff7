// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrument

import (
	"go/ast"
	"strings"
)

// InstrumentStats tracks instrumentation statistics.
//
// Enable with -v to see them per file:
//
//	functrace build -v .
//	instrumented main.go: 12 functions, 3 literals, 1 skipped
//
//nolint:revive // InstrumentStats is clear and descriptive despite stuttering
type InstrumentStats struct {
	Functions int  // function and method bodies instrumented
	Literals  int  // function literals instrumented
	Skipped   int  // functions excluded by directive or without a body
	Already   int  // bodies that already started with the hook
	Main      bool // Init/Fini inserted into main.main
	Generated bool // file is generated code and was left alone
}

// Total returns the number of bodies that received a hook.
func (s *InstrumentStats) Total() int {
	return s.Functions + s.Literals
}

// hookPoint is one function body to instrument.
type hookPoint struct {
	body   *ast.BlockStmt
	isMain bool
}

// instrumentVisitor implements ast.Visitor for collecting function bodies.
//
// Two-Pass Algorithm:
//
//	Pass 1 (Visit): record every eligible body
//	Pass 2 (Apply): prepend the hook statements to each recorded body
type instrumentVisitor struct {
	file   *ast.File
	alias  string
	isMain bool // package main

	points []hookPoint
	stats  InstrumentStats
}

func newInstrumentVisitor(file *ast.File, alias string) *instrumentVisitor {
	return &instrumentVisitor{
		file:   file,
		alias:  alias,
		isMain: file.Name.Name == "main",
	}
}

// Visit implements ast.Visitor.
//
// Nodes we care about:
//  1. *ast.FuncDecl: functions and methods
//  2. *ast.FuncLit: closures, goroutine bodies, deferred funcs
//
// A skipped declaration returns nil so its literals are skipped too.
func (v *instrumentVisitor) Visit(node ast.Node) ast.Visitor {
	switch n := node.(type) {
	case nil:
		return nil

	case *ast.FuncDecl:
		if n.Body == nil || hasDirective(n.Doc) {
			v.stats.Skipped++
			return nil
		}
		isMain := v.isMain && n.Recv == nil && n.Name.Name == "main"
		if v.instrumented(n.Body, isMain) {
			v.stats.Already++
			return v
		}
		v.points = append(v.points, hookPoint{body: n.Body, isMain: isMain})
		v.stats.Functions++
		if isMain {
			v.stats.Main = true
		}

	case *ast.FuncLit:
		if v.instrumented(n.Body, false) {
			v.stats.Already++
			return v
		}
		v.points = append(v.points, hookPoint{body: n.Body})
		v.stats.Literals++
	}
	return v
}

// hasDirective reports whether a doc comment excludes the function.
func hasDirective(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(c.Text)
		if text == SkipDirective || text == "//go:nosplit" {
			return true
		}
	}
	return false
}

// instrumented reports whether body already starts with the hook
// statements this visitor would insert.
func (v *instrumentVisitor) instrumented(body *ast.BlockStmt, isMain bool) bool {
	want := v.hookStmts(isMain)
	if len(body.List) < len(want) {
		return false
	}
	for i, stmt := range want {
		if !sameStmt(body.List[i], stmt) {
			return false
		}
	}
	return true
}

// ApplyInstrumentation prepends the hook statements to every collected body.
func (v *instrumentVisitor) ApplyInstrumentation() {
	for _, p := range v.points {
		hooks := v.hookStmts(p.isMain)
		p.body.List = append(hooks, p.body.List...)
	}
}

// GetStats returns the instrumentation statistics.
func (v *instrumentVisitor) GetStats() InstrumentStats {
	return v.stats
}

// hookStmts builds the statements inserted at the top of a body.
//
// Generated Code:
//
//	functrace.Init()               // main.main only
//	defer functrace.Fini()         // main.main only
//	defer functrace.Enter().Exit()
//
// Defers run last-in first-out, so in main the exit of main itself is
// recorded before Fini exports the trace.
func (v *instrumentVisitor) hookStmts(isMain bool) []ast.Stmt {
	enterExit := &ast.DeferStmt{
		Call: &ast.CallExpr{
			Fun: &ast.SelectorExpr{
				X:   v.call("Enter"),
				Sel: ast.NewIdent("Exit"),
			},
		},
	}
	if !isMain {
		return []ast.Stmt{enterExit}
	}
	return []ast.Stmt{
		&ast.ExprStmt{X: v.call("Init")},
		&ast.DeferStmt{Call: v.call("Fini")},
		enterExit,
	}
}

// call builds functrace.<name>().
func (v *instrumentVisitor) call(name string) *ast.CallExpr {
	return &ast.CallExpr{
		Fun: &ast.SelectorExpr{
			X:   ast.NewIdent(v.alias),
			Sel: ast.NewIdent(name),
		},
	}
}

// sameStmt compares the shapes of two hook statements, ignoring positions.
func sameStmt(a, b ast.Stmt) bool {
	switch x := a.(type) {
	case *ast.ExprStmt:
		y, ok := b.(*ast.ExprStmt)
		return ok && sameExpr(x.X, y.X)
	case *ast.DeferStmt:
		y, ok := b.(*ast.DeferStmt)
		return ok && sameExpr(x.Call, y.Call)
	}
	return false
}

func sameExpr(a, b ast.Expr) bool {
	switch x := a.(type) {
	case *ast.Ident:
		y, ok := b.(*ast.Ident)
		return ok && x.Name == y.Name
	case *ast.SelectorExpr:
		y, ok := b.(*ast.SelectorExpr)
		return ok && x.Sel.Name == y.Sel.Name && sameExpr(x.X, y.X)
	case *ast.CallExpr:
		y, ok := b.(*ast.CallExpr)
		return ok && len(x.Args) == 0 && len(y.Args) == 0 && sameExpr(x.Fun, y.Fun)
	}
	return false
}

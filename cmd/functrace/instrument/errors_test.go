// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrument

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"
)

// TestInstrumentationError_Error tests error message formatting.
func TestInstrumentationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *InstrumentationError
		expected string
	}{
		{
			name: "without suggestion",
			err: &InstrumentationError{
				File:    "main.go",
				Line:    3,
				Column:  8,
				Message: "trace package imported as _",
			},
			expected: "main.go:3:8: trace package imported as _",
		},
		{
			name: "with suggestion",
			err: &InstrumentationError{
				File:       "work.go",
				Line:       5,
				Column:     5,
				Message:    "top-level declaration uses the reserved name functrace",
				Suggestion: "Rename the declaration",
			},
			expected: "work.go:5:5: top-level declaration uses the reserved name functrace\n\nSuggestion: Rename the declaration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestNewInstrumentationError tests position extraction.
func TestNewInstrumentationError(t *testing.T) {
	src := `package main

func main() {
	x := 42
	_ = x
}
`
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, 0)
	if err != nil {
		t.Fatalf("Failed to parse source: %v", err)
	}

	stmt := file.Decls[0].(*ast.FuncDecl).Body.List[0]
	ierr := NewInstrumentationErrorWithSuggestion(fset, stmt.Pos(), "test error", "try again")

	if ierr.File != "test.go" || ierr.Line != 4 || ierr.Column != 2 {
		t.Errorf("position = %s:%d:%d, want test.go:4:2", ierr.File, ierr.Line, ierr.Column)
	}
	if ierr.Message != "test error" || ierr.Suggestion != "try again" {
		t.Errorf("message = %q, suggestion = %q", ierr.Message, ierr.Suggestion)
	}
}

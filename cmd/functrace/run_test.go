// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestParseRunArgs tests splitting build flags, sources and program args.
func TestParseRunArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		files       []string
		flags       []string
		programArgs []string
		verbose     bool
	}{
		{
			name:  "single file",
			args:  []string{"main.go"},
			files: []string{"main.go"},
		},
		{
			name:        "program args",
			args:        []string{"main.go", "helper.go", "--flag=value", "input.txt"},
			files:       []string{"main.go", "helper.go"},
			programArgs: []string{"--flag=value", "input.txt"},
		},
		{
			name:        "build flags first",
			args:        []string{"-v", "-ldflags", "-s -w", "main.go", "x"},
			files:       []string{"main.go"},
			flags:       []string{"-ldflags", "-s -w"},
			programArgs: []string{"x"},
			verbose:     true,
		},
		{
			name:        "double dash",
			args:        []string{"main.go", "--", "other.go"},
			files:       []string{"main.go"},
			programArgs: []string{"other.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, programArgs, err := parseRunArgs(tt.args)
			if err != nil {
				t.Fatalf("parseRunArgs() error: %v", err)
			}
			if strings.Join(config.sourceFiles, "|") != strings.Join(tt.files, "|") {
				t.Errorf("sourceFiles = %q, want %q", config.sourceFiles, tt.files)
			}
			if strings.Join(config.buildFlags, "|") != strings.Join(tt.flags, "|") {
				t.Errorf("buildFlags = %q, want %q", config.buildFlags, tt.flags)
			}
			if strings.Join(programArgs, "|") != strings.Join(tt.programArgs, "|") {
				t.Errorf("programArgs = %q, want %q", programArgs, tt.programArgs)
			}
			if config.verbose != tt.verbose {
				t.Errorf("verbose = %v, want %v", config.verbose, tt.verbose)
			}
		})
	}
}

// TestParseRunArgs_Errors tests missing sources.
func TestParseRunArgs_Errors(t *testing.T) {
	for _, args := range [][]string{nil, {"-v"}, {"./pkg"}} {
		if _, _, err := parseRunArgs(args); err == nil {
			t.Errorf("parseRunArgs(%q) succeeded, want error", args)
		}
	}
}

// TestExecuteBinary tests exit code propagation.
func TestExecuteBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	var stdout, stderr bytes.Buffer
	code := executeBinary(context.Background(), sh, []string{"-c", "echo traced; exit 3"}, nil, &stdout, &stderr)
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if stdout.String() != "traced\n" {
		t.Errorf("stdout = %q", stdout.String())
	}

	code = executeBinary(context.Background(), sh, []string{"-c", "exit 0"}, nil, &stdout, &stderr)
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

// TestExecuteBinary_Missing tests a binary that cannot start.
func TestExecuteBinary_Missing(t *testing.T) {
	var stderr bytes.Buffer
	code := executeBinary(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, nil, &stderr, &stderr)
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stderr.String(), "Failed to execute program") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

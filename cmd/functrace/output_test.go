// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	base := errors.New("disk full")

	tests := []struct {
		name string
		err  error
		msg  string
		code int
	}{
		{"plain", NewExitError(ExitFailure, "verification failed"), "verification failed", ExitFailure},
		{"wrapped", WrapExitError(ExitCommandError, "failed to write trace", base), "failed to write trace: disk full", ExitCommandError},
		{"nested", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "bad")), "outer: bad", ExitCommandError},
		{"foreign", errors.New("boom"), "boom", ExitFailure},
		{"silent", &ExitError{Code: 3}, "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.Equal(t, tt.code, GetExitCode(tt.err))
		})
	}

	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.ErrorIs(t, WrapExitError(ExitFailure, "x", base), base)
}

func TestOutputFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: FormatJSON, Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"events": 8}))

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 8, resp.Data["events"])

	buf.Reset()
	require.NoError(t, f.Failure(nil, errors.New("broken")))
	assert.Contains(t, buf.String(), `"status": "error"`)
	assert.Contains(t, buf.String(), `"error": "broken"`)
}

func TestOutputFormatterText(t *testing.T) {
	var out, diag bytes.Buffer
	f := &OutputFormatter{Format: FormatText, Writer: &out, ErrWriter: &diag}

	require.NoError(t, f.Success("done"))
	require.NoError(t, f.Failure(nil, errors.New("ignored in text mode")))
	f.VerboseLog("hidden %d", 1)
	assert.Equal(t, "done\n", out.String())
	assert.Empty(t, diag.String())

	f.Verbose = true
	f.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", diag.String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

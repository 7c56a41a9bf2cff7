// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzy107/functrace/internal/trace/event"
	"github.com/lzy107/functrace/internal/trace/export"
)

const (
	fnOuter uintptr = 0x4a10
	fnInner uintptr = 0x4b20
	site    uintptr = 0x5000
)

func ev(seq uint64, kind event.Kind, fn uintptr, tid uint64, depth int64, ts uint64) event.Event {
	return event.Event{Kind: kind, Func: fn, Caller: site, Timestamp: ts, ThreadID: tid, Depth: depth, Seq: seq}
}

func writeTrace(t *testing.T, name string, events []event.Event, dropped uint64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	doc := export.NewDocument(events, 500, dropped)
	require.NoError(t, export.WriteFile(path, doc, export.FormatAuto))
	return path
}

func cleanTrace() []event.Event {
	return []event.Event{
		ev(0, event.KindEntry, fnOuter, 1, 0, 100),
		ev(1, event.KindEntry, fnInner, 1, 1, 110),
		ev(2, event.KindEntry, fnOuter, 2, 0, 115),
		ev(3, event.KindExit, fnInner, 1, 1, 210),
		ev(4, event.KindExit, fnOuter, 1, 0, 220),
		ev(5, event.KindExit, fnOuter, 2, 0, 400),
	}
}

func TestInspectClean(t *testing.T) {
	cleanEnv(t)
	path := writeTrace(t, "clean.json", cleanTrace(), 0)

	stdout, _, err := executeCommand(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "VALID")
	assert.NotContains(t, stdout, "INVALID")
	assert.Contains(t, stdout, "6 recorded, 0 dropped")
	assert.Contains(t, stdout, "pairs:     3 across 2 goroutine(s)")
	assert.Contains(t, stdout, "0x4a10")
}

func TestInspectJSON(t *testing.T) {
	cleanEnv(t)
	path := writeTrace(t, "clean.msgpack", cleanTrace(), 0)

	stdout, _, err := executeCommand(t, "inspect", "--format", "json", "--top", "1", path)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   inspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)

	res := resp.Data
	assert.Equal(t, 6, res.Events)
	assert.Equal(t, 3, res.Pairs)
	assert.True(t, res.OK)
	assert.True(t, res.Complete)
	require.Len(t, res.Threads, 2)
	assert.Equal(t, uint64(1), res.Threads[0].ThreadID)
	assert.Equal(t, int64(1), res.Threads[0].MaxDepth)
	assert.Equal(t, uint64(120), res.Threads[0].Span)

	// outer: 120us on goroutine 1 plus 285us on goroutine 2
	require.Len(t, res.Funcs, 1)
	assert.Equal(t, "0x4a10", res.Funcs[0].Func)
	assert.Equal(t, 2, res.Funcs[0].Calls)
	assert.Equal(t, uint64(405), res.Funcs[0].Total)
	assert.Equal(t, uint64(285), res.Funcs[0].Max)
}

func TestInspectTruncated(t *testing.T) {
	cleanEnv(t)
	events := []event.Event{
		ev(0, event.KindEntry, fnOuter, 1, 0, 100),
		ev(1, event.KindEntry, fnInner, 1, 1, 110),
		ev(3, event.KindExit, fnOuter, 1, 0, 300),
	}
	path := writeTrace(t, "truncated.json", events, 2)

	// The exit of inner was lost: outer still closes, inner stays open.
	stdout, _, err := executeCommand(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "VALID (truncated)")
	assert.Contains(t, stdout, "1 entr(ies) never exited")
	assert.Contains(t, stdout, "1 record id(s) missing in 1 gap(s)")
	assert.Contains(t, stdout, "3 recorded, 2 dropped")
}

func TestInspectMismatch(t *testing.T) {
	cleanEnv(t)
	events := []event.Event{
		ev(0, event.KindEntry, fnOuter, 1, 0, 100),
		ev(1, event.KindExit, fnInner, 1, 1, 110),
	}
	path := writeTrace(t, "mismatch.json", events, 0)

	stdout, _, err := executeCommand(t, "inspect", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "INVALID")
	assert.Contains(t, stdout, "does not close")
}

func TestInspectStrict(t *testing.T) {
	cleanEnv(t)
	events := cleanTrace()[:3] // three entries, no exits
	path := writeTrace(t, "open.json", events, 3)

	stdout, _, err := executeCommand(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "VALID (truncated)")
	assert.Contains(t, stdout, "3 entr(ies) never exited")

	_, _, err = executeCommand(t, "inspect", "--strict", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// Balanced records whose recorder still dropped events at the tail.
func TestInspectStrictDropped(t *testing.T) {
	cleanEnv(t)
	path := writeTrace(t, "dropped.json", cleanTrace(), 2)

	stdout, _, err := executeCommand(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "VALID (truncated)")
	assert.Contains(t, stdout, "2 event(s) dropped by a full buffer")

	_, _, err = executeCommand(t, "inspect", "--strict", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "trace is incomplete")
}

func TestInspectViolations(t *testing.T) {
	cleanEnv(t)
	events := []event.Event{
		ev(0, event.KindExit, fnOuter, 1, 0, 100),
		ev(1, event.KindEntry, fnOuter, 1, 0, 110),
		ev(1, event.KindEntry, fnOuter, 1, 0, 110),
	}
	path := writeTrace(t, "bad.json", events, 0)

	stdout, _, err := executeCommand(t, "inspect", "--format", "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string        `json:"status"`
		Data   inspectResult `json:"data"`
		Error  string        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "trace verification failed", resp.Error)
	assert.Equal(t, 1, resp.Data.Orphans)
	assert.Equal(t, 1, resp.Data.Duplicates)
}

func TestInspectErrors(t *testing.T) {
	cleanEnv(t)
	path := writeTrace(t, "ok.json", cleanTrace(), 0)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"inspect", filepath.Join(t.TempDir(), "nope.json")}},
		{"wrong encoding", []string{"inspect", "--trace-format", "msgpack", path}},
		{"unknown encoding", []string{"inspect", "--trace-format", "xml", path}},
		{"bad output format", []string{"inspect", "--format", "yaml", path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}

	_, _, err := executeCommand(t, "inspect")
	assert.Error(t, err, "missing argument")
}

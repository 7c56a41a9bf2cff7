// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzy107/functrace/internal/trace/check"
	"github.com/lzy107/functrace/internal/trace/event"
	"github.com/lzy107/functrace/internal/trace/export"
)

func readTrace(t *testing.T, path string) (*export.Document, []event.Event) {
	t.Helper()
	doc, err := export.ReadFile(path, export.FormatAuto)
	require.NoError(t, err)
	events, err := doc.Events()
	require.NoError(t, err)
	return doc, events
}

// Two goroutines, one outer->inner call each: eight events, depths 0/1
// mirrored on exit.
func TestDemoDefaultShape(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "demo.json")

	stdout, stderr, err := executeCommand(t, "demo", "--delay", "1ms", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "events:  8 (4 pairs)")
	assert.Contains(t, stdout, "complete")
	assert.Contains(t, stderr, "Function Trace Report")

	doc, events := readTrace(t, out)
	assert.Equal(t, uint64(8), doc.Recorded)
	assert.Zero(t, doc.Dropped)
	require.Len(t, events, 8)

	report := check.Verify(events)
	assert.True(t, report.Complete())
	assert.Equal(t, 4, report.Pairs)

	byThread := map[uint64][]event.Event{}
	for _, ev := range events {
		byThread[ev.ThreadID] = append(byThread[ev.ThreadID], ev)
	}
	require.Len(t, byThread, 2)
	for tid, evs := range byThread {
		require.Len(t, evs, 4, "goroutine %d", tid)
		kinds := []event.Kind{evs[0].Kind, evs[1].Kind, evs[2].Kind, evs[3].Kind}
		depths := []int64{evs[0].Depth, evs[1].Depth, evs[2].Depth, evs[3].Depth}
		assert.Equal(t, []event.Kind{event.KindEntry, event.KindEntry, event.KindExit, event.KindExit}, kinds)
		assert.Equal(t, []int64{0, 1, 1, 0}, depths)
		assert.Equal(t, evs[0].Func, evs[3].Func, "outer entry/exit")
		assert.Equal(t, evs[1].Func, evs[2].Func, "inner entry/exit")
	}
}

func TestDemoMsgpackJSONOutput(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "demo.msgpack")

	stdout, _, err := executeCommand(t, "demo",
		"--workers", "4", "--calls", "3", "--delay", "0s",
		"-o", out, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   demoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4*3*4, resp.Data.Events)
	assert.Equal(t, 4*3*2, resp.Data.Pairs)
	assert.True(t, resp.Data.Complete)
	assert.NotEmpty(t, resp.Data.Session)

	_, events := readTrace(t, out)
	assert.Len(t, events, 48)
}

// A buffer smaller than the workload drops the tail: the trace is
// truncated but still valid.
func TestDemoSmallCapacity(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "small.json")

	stdout, _, err := executeCommand(t, "demo", "--workers", "1", "--calls", "2", "--delay", "0s",
		"--capacity", "5", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "dropped: 3")
	assert.Contains(t, stdout, "truncated")

	doc, events := readTrace(t, out)
	assert.Equal(t, uint64(5), doc.Recorded)
	assert.Equal(t, uint64(3), doc.Dropped)
	for i, ev := range events {
		assert.Equal(t, uint64(i), ev.Seq)
	}
}

// The first call fits the buffer exactly, so every stored entry has its
// exit; the second call is dropped whole.
func TestDemoDroppedTailIsTruncated(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "tail.json")

	stdout, _, err := executeCommand(t, "demo", "--workers", "1", "--calls", "2", "--delay", "0s",
		"--capacity", "4", "-o", out, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data demoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 4, resp.Data.Events)
	assert.Equal(t, 2, resp.Data.Pairs)
	assert.Equal(t, uint64(4), resp.Data.Dropped)
	assert.False(t, resp.Data.Complete)
}

func TestDemoInvalidOptions(t *testing.T) {
	cleanEnv(t)

	tests := [][]string{
		{"demo", "--workers", "0"},
		{"demo", "--calls", "-1"},
		{"demo", "--trace-format", "xml"},
		{"demo", "--format", "yaml"},
	}
	for _, args := range tests {
		_, _, err := executeCommand(t, args...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), "%v", args)
	}
}

func TestRunWorkersCancelled(t *testing.T) {
	cleanEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runWorkers(ctx, 2, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

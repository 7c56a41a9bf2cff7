// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzy107/functrace/internal/config"
	"github.com/lzy107/functrace/internal/trace/export"
)

func TestGlobal_Lifecycle(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg := config.Default()
	cfg.Output = filepath.Join(t.TempDir(), "trace.json")
	tr := Init(cfg, WithLogger(quietLogger()), WithStderr(io.Discard))
	assert.Same(t, tr, Current())

	FuncEnter(outerFn, outerSite)
	FuncExit(outerFn, outerSite)
	assert.Len(t, Events(), 2)
	assert.Equal(t, uint64(2), CurrentStats().Recorded)

	Disable()
	FuncEnter(outerFn, outerSite)
	Enable()
	assert.Len(t, Events(), 2)

	require.NoError(t, Fini())
	doc, err := export.ReadFile(cfg.Output, export.FormatAuto)
	require.NoError(t, err)
	assert.Len(t, doc.Records, 2)
}

func TestGlobal_FiniWithoutInit(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	assert.ErrorIs(t, Fini(), ErrNotInitialized)
}

func TestGlobal_LazyInitFromEnv(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv(config.EnvCapacity, "3")
	t.Setenv(config.EnvOutput, filepath.Join(t.TempDir(), "lazy.msgpack"))

	FuncEnter(outerFn, outerSite)

	tr := Current()
	assert.Equal(t, 3, tr.Config().Capacity)
	assert.Equal(t, uint64(3), tr.Stats().Capacity)
	assert.Len(t, tr.Events(), 1)
}

func TestGlobal_LazyInitBadEnv(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv(config.EnvCapacity, "many")

	tr := Current()
	assert.Equal(t, config.DefaultCapacity, tr.Config().Capacity)
}

func TestGlobal_StartAfterFini(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv(config.EnvOutput, filepath.Join(t.TempDir(), "restart.json"))

	first := Start()
	assert.Same(t, first, Start(), "a running session is kept")
	FuncEnter(outerFn, outerSite)
	FuncExit(outerFn, outerSite)
	require.NoError(t, first.Fini())
	assert.True(t, first.Finished())

	// Hooks alone never reopen a finished session.
	FuncEnter(outerFn, outerSite)
	assert.Same(t, first, Current())

	second := Start()
	assert.NotSame(t, first, second)
	assert.True(t, second.Enabled())
	FuncEnter(outerFn, outerSite)
	FuncExit(outerFn, outerSite)
	assert.Len(t, Events(), 2)
	require.NoError(t, Fini())
}

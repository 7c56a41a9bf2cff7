// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzy107/functrace/internal/trace/export"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultCapacity, cfg.Capacity)
	assert.Equal(t, "trace.json", cfg.Output)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.Demo.Workers)
	assert.Equal(t, 1, cfg.Demo.Calls)
	assert.Equal(t, 100*time.Millisecond, cfg.Demo.Delay)

	f, err := cfg.TraceFormat()
	require.NoError(t, err)
	assert.Equal(t, export.FormatAuto, f)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestMergeFile_TOML(t *testing.T) {
	path := writeFile(t, "functrace.toml", `
capacity = 64
output = "out/trace.msgpack"
log_level = "debug"

[demo]
workers = 4
delay = "5ms"
`)
	cfg := Default()
	require.NoError(t, cfg.MergeFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 64, cfg.Capacity)
	assert.Equal(t, "out/trace.msgpack", cfg.Output)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Demo.Workers)
	assert.Equal(t, 5*time.Millisecond, cfg.Demo.Delay)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 1, cfg.Demo.Calls)
	assert.True(t, cfg.Enabled)
}

func TestMergeFile_YAML(t *testing.T) {
	path := writeFile(t, "functrace.yaml", `
capacity: 5
format: json
enabled: false
demo:
  calls: 3
  delay: 1s
`)
	cfg := Default()
	require.NoError(t, cfg.MergeFile(path))

	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, "json", cfg.Format)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.Demo.Calls)
	assert.Equal(t, time.Second, cfg.Demo.Delay)
	assert.Equal(t, 2, cfg.Demo.Workers)
}

func TestMergeFile_Errors(t *testing.T) {
	cfg := Default()

	err := cfg.MergeFile(writeFile(t, "functrace.ini", "capacity=1"))
	assert.ErrorIs(t, err, ErrInvalid)

	err = cfg.MergeFile(writeFile(t, "bad.toml", "capacity = ["))
	assert.Error(t, err)

	err = cfg.MergeFile(writeFile(t, "bad.yaml", "capacity: [1, 2"))
	assert.Error(t, err)

	err = cfg.MergeFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	err := cfg.FromEnv(env(map[string]string{
		EnvCapacity: "128",
		EnvOutput:   "/tmp/t.mp",
		EnvFormat:   "msgpack",
		EnvEnabled:  "false",
		EnvLogLevel: "warn",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 128, cfg.Capacity)
	assert.Equal(t, "/tmp/t.mp", cfg.Output)
	assert.Equal(t, "msgpack", cfg.Format)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"capacity not a number": {EnvCapacity: "lots"},
		"capacity overflow":     {EnvCapacity: "99999999999999999999"},
		"enabled not a bool":    {EnvEnabled: "maybe"},
	}

	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			assert.ErrorIs(t, cfg.FromEnv(env(vars)), ErrInvalid)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative capacity", func(c *Config) { c.Capacity = -1 }},
		{"empty output", func(c *Config) { c.Output = "" }},
		{"unknown format", func(c *Config) { c.Format = "xml" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"no workers", func(c *Config) { c.Demo.Workers = 0 }},
		{"no calls", func(c *Config) { c.Demo.Calls = 0 }},
		{"negative delay", func(c *Config) { c.Demo.Delay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "functrace.toml", "capacity = 10\n")
	t.Setenv(EnvCapacity, "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	// The environment overrides the file.
	assert.Equal(t, 20, cfg.Capacity)

	t.Setenv(EnvConfig, path)
	t.Setenv(EnvCapacity, "")
	_, err = LoadEnv()
	assert.ErrorIs(t, err, ErrInvalid, "an empty capacity variable is rejected")
}

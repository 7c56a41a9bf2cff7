// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds tracer and CLI settings.
//
// Settings are layered: Default, then an optional TOML or YAML file, then
// FUNCTRACE_* environment variables. The CLI applies its flags last.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lzy107/functrace/internal/trace/export"
)

// ErrInvalid is wrapped by every validation and parse error.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables read by FromEnv.
const (
	EnvConfig   = "FUNCTRACE_CONFIG"
	EnvCapacity = "FUNCTRACE_CAPACITY"
	EnvOutput   = "FUNCTRACE_OUTPUT"
	EnvFormat   = "FUNCTRACE_FORMAT"
	EnvEnabled  = "FUNCTRACE_ENABLED"
	EnvLogLevel = "FUNCTRACE_LOG_LEVEL"
)

// Defaults.
const (
	DefaultCapacity = 1 << 16
	DefaultOutput   = "trace.json"
	DefaultWorkers  = 2
	DefaultCalls    = 1
	DefaultDelay    = 100 * time.Millisecond
)

// Config is the complete tracer configuration.
type Config struct {
	Capacity int    `toml:"capacity" yaml:"capacity"`   // buffer slots
	Output   string `toml:"output" yaml:"output"`       // trace file written by Fini
	Format   string `toml:"format" yaml:"format"`       // auto, json or msgpack
	Enabled  bool   `toml:"enabled" yaml:"enabled"`     // record events from Init on
	LogLevel string `toml:"log_level" yaml:"log_level"` // debug, info, warn or error
	Demo     Demo   `toml:"demo" yaml:"demo"`
}

// Demo configures the demonstration harness.
type Demo struct {
	Workers int           `toml:"workers" yaml:"workers"` // concurrent goroutines
	Calls   int           `toml:"calls" yaml:"calls"`     // outer calls per goroutine
	Delay   time.Duration `toml:"delay" yaml:"delay"`     // sleep inside the inner call
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Capacity: DefaultCapacity,
		Output:   DefaultOutput,
		Format:   "auto",
		Enabled:  true,
		LogLevel: "info",
		Demo: Demo{
			Workers: DefaultWorkers,
			Calls:   DefaultCalls,
			Delay:   DefaultDelay,
		},
	}
}

// Load builds a configuration from the defaults, the file at path (if
// non-empty) and the process environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.FromEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv is Load with the file path taken from FUNCTRACE_CONFIG.
func LoadEnv() (Config, error) {
	return Load(os.Getenv(EnvConfig))
}

// MergeFile overlays the keys present in a TOML (.toml) or YAML
// (.yaml, .yml) file onto c.
func (c *Config) MergeFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("%s: yaml unmarshal: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s: unsupported config file type (expected .toml, .yaml or .yml)", ErrInvalid, path)
	}
	return nil
}

// FromEnv overlays FUNCTRACE_* variables onto c. lookup is usually
// os.LookupEnv.
func (c *Config) FromEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCapacity); ok {
		n, err := ParseCapacity(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCapacity, err)
		}
		c.Capacity = n
	}
	if v, ok := lookup(EnvOutput); ok && v != "" {
		c.Output = v
	}
	if v, ok := lookup(EnvFormat); ok && v != "" {
		c.Format = v
	}
	if v, ok := lookup(EnvEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, EnvEnabled, v, err)
		}
		c.Enabled = b
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// ParseCapacity parses a slot count that must fit in an int.
func ParseCapacity(s string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: capacity %q: %w", ErrInvalid, s, err)
	}
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0, fmt.Errorf("%w: capacity %q: %w", ErrInvalid, s, err)
	}
	return n, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0, got %d", ErrInvalid, c.Capacity)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalid)
	}
	if _, err := c.TraceFormat(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Demo.Workers < 1 {
		return fmt.Errorf("%w: demo.workers must be >= 1, got %d", ErrInvalid, c.Demo.Workers)
	}
	if c.Demo.Calls < 1 {
		return fmt.Errorf("%w: demo.calls must be >= 1, got %d", ErrInvalid, c.Demo.Calls)
	}
	if c.Demo.Delay < 0 {
		return fmt.Errorf("%w: demo.delay must be >= 0, got %s", ErrInvalid, c.Demo.Delay)
	}
	return nil
}

// TraceFormat returns the export format named by c.Format.
func (c *Config) TraceFormat() (export.Format, error) {
	return export.ParseFormat(c.Format)
}

// Level returns the slog level named by c.LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q (expected: debug|info|warn|error)", ErrInvalid, c.LogLevel)
	}
	return lvl, nil
}

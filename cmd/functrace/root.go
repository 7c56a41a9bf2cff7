// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lzy107/functrace/internal/config"
	"github.com/lzy107/functrace/trace"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	NoColor    bool

	// Config is loaded before any subcommand runs.
	Config config.Config
}

// NewRootCommand creates the root command for the functrace CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Default()}

	cmd := &cobra.Command{
		Use:   "functrace",
		Short: "Function-call tracer for Go programs",
		Long: `functrace records every function entry and exit of a Go program.

Sources are instrumented at the AST level: each function body starts with
a deferred hook pair, and main.main starts and finishes the tracing
session. The trace is written as JSON or msgpack and can be checked with
'functrace inspect'.`,
		Version:       trace.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "configuration file (.toml, .yaml); defaults to $"+config.EnvConfig)
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewInstrumentCommand(opts))
	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// setup loads the configuration and installs the logger and color mode.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if o.NoColor || !isTerminal(cmd.OutOrStdout()) {
		color.NoColor = true
	}

	path := o.ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	o.Config = cfg

	level, err := cfg.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("configuration loaded", "file", path, "capacity", cfg.Capacity, "output", cfg.Output)
	return nil
}

// formatter builds the output formatter of a command.
func (o *RootOptions) formatter(cmd *cobra.Command, format string) *OutputFormatter {
	return &OutputFormatter{
		Format:    format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

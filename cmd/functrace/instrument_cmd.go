// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lzy107/functrace/cmd/functrace/instrument"
)

// InstrumentOptions holds flags for the instrument command.
type InstrumentOptions struct {
	*RootOptions
	Write  bool
	OutDir string
	Format string
}

// NewInstrumentCommand creates the instrument command.
func NewInstrumentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InstrumentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "instrument <files.go or directories>...",
		Short: "Insert trace hooks into Go source files",
		Long: `Insert an entry/exit hook at the top of every function body.

By default the instrumented sources are printed to stdout. With -w they
replace the originals, with -d they are written to another directory.
Functions marked //functrace:skip or //go:nosplit, and generated files,
are left alone. Instrumenting a file twice changes nothing.

Example:
  functrace instrument main.go
  functrace instrument -d /tmp/traced ./cmd/app`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstrument(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Write, "write", "w", false, "write result to the source files")
	cmd.Flags().StringVarP(&opts.OutDir, "dir", "d", "", "write results into this directory")
	cmd.Flags().StringVar(&opts.Format, "format", FormatText, "report format with -w or -d (text|json)")

	return cmd
}

type instrumentRow struct {
	File      string `json:"file"`
	Functions int    `json:"functions"`
	Literals  int    `json:"literals"`
	Skipped   int    `json:"skipped"`
	Already   int    `json:"already"`
	Main      bool   `json:"main"`
	Generated bool   `json:"generated"`
	Written   string `json:"written,omitempty"`
}

func runInstrument(opts *InstrumentOptions, args []string, cmd *cobra.Command) error {
	if !validFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be text or json", opts.Format))
	}
	if opts.Write && opts.OutDir != "" {
		return NewExitError(ExitCommandError, "-w and -d are mutually exclusive")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get working directory", err)
	}
	files, err := collectGoFiles(args, cwd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect source files", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, "no Go source files found")
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create output directory", err)
		}
	}

	out := opts.formatter(cmd, opts.Format)
	rows := make([]instrumentRow, 0, len(files))
	for _, path := range files {
		result, err := instrument.InstrumentFile(path, nil)
		if err != nil {
			return WrapExitError(ExitFailure, "instrumentation failed", err)
		}

		s := result.Stats
		row := instrumentRow{
			File:      path,
			Functions: s.Functions,
			Literals:  s.Literals,
			Skipped:   s.Skipped,
			Already:   s.Already,
			Main:      s.Main,
			Generated: s.Generated,
		}
		out.VerboseLog("instrumented %s: %d functions, %d literals, %d skipped, %d already", path, s.Functions, s.Literals, s.Skipped, s.Already)

		switch {
		case opts.Write:
			if result.Changed {
				if err := writeSource(path, result.Code); err != nil {
					return WrapExitError(ExitCommandError, "failed to write source", err)
				}
				row.Written = path
			}
		case opts.OutDir != "":
			dst := filepath.Join(opts.OutDir, filepath.Base(path))
			if err := writeSource(dst, result.Code); err != nil {
				return WrapExitError(ExitCommandError, "failed to write source", err)
			}
			row.Written = dst
		default:
			fmt.Fprint(cmd.OutOrStdout(), result.Code)
		}
		rows = append(rows, row)
	}

	if !opts.Write && opts.OutDir == "" {
		return nil
	}
	if out.JSON() {
		return out.Success(rows)
	}
	for _, r := range rows {
		if r.Written != "" {
			fmt.Fprintf(out.Writer, "%s: %d hook(s)\n", r.Written, r.Functions+r.Literals)
		}
	}
	return nil
}

// writeSource replaces path, keeping the mode of an existing file.
func writeSource(path, code string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, []byte(code), mode)
}

// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lzy107/functrace/trace"
)

// versionPayload is the machine-readable form of the version command.
type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Schema    int    `json:"schema"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !validFormat(format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be text or json", format))
			}
			info := trace.GetInfo()
			p := versionPayload{
				Tool:      "functrace",
				Version:   info.Version,
				Schema:    info.Schema,
				GoVersion: runtime.Version(),
				GitCommit: vcsRevision(),
			}

			out := rootOpts.formatter(cmd, format)
			if out.JSON() {
				return out.Success(p)
			}
			fmt.Fprintf(out.Writer, "%s version %s\n", color.New(color.Bold).Sprint(p.Tool), p.Version)
			fmt.Fprintf(out.Writer, "  trace schema: %d\n", p.Schema)
			fmt.Fprintf(out.Writer, "  go:           %s\n", p.GoVersion)
			if p.GitCommit != "" {
				fmt.Fprintf(out.Writer, "  commit:       %s\n", p.GitCommit)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", FormatText, "output format (text|json)")
	return cmd
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

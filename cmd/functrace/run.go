// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
//
// Like 'go run', arguments after the first .go file are passed to the
// program.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [build flags] <files.go> [program arguments]",
		Short: "Build and run a Go program with function tracing",
		Long: `Instrument, build and run a Go program.

The program writes its trace when main returns, to trace.json in the
working directory unless FUNCTRACE_OUTPUT says otherwise. The exit code
of the program is the exit code of this command.

Example:
  functrace run main.go
  FUNCTRACE_OUTPUT=out.msgpack functrace run main.go helper.go -- -flag=value`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
				return cmd.Help()
			}
			config, programArgs, err := parseRunArgs(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}

			out := rootOpts.formatter(cmd, FormatText)
			binary, err := buildTemporary(cmd.Context(), config, out)
			if err != nil {
				return err
			}
			defer func() { _ = os.Remove(binary) }()

			code := executeBinary(cmd.Context(), binary, programArgs, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != 0 {
				// The program already reported its failure.
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}

// parseRunArgs parses command-line arguments for 'functrace run'.
//
// Format: functrace run [build flags] <files.go> [program arguments]
//
// Build flags come before the first .go file, program arguments after
// the last one. A literal "--" also starts the program arguments.
func parseRunArgs(args []string) (*buildConfig, []string, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("no source files specified")
	}

	var sourceFiles, programArgs, buildFlags []string
	verbose := false
	sawGoFile := false
	inProgramArgs := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if inProgramArgs {
			programArgs = append(programArgs, arg)
			continue
		}

		if arg == "--" {
			inProgramArgs = true
			continue
		}

		if filepath.Ext(arg) == ".go" {
			sourceFiles = append(sourceFiles, arg)
			sawGoFile = true
			continue
		}

		if sawGoFile {
			inProgramArgs = true
			programArgs = append(programArgs, arg)
			continue
		}

		if arg == "-v" {
			verbose = true
			continue
		}

		buildFlags = append(buildFlags, arg)
		if needsValue(arg) && i+1 < len(args) {
			i++
			buildFlags = append(buildFlags, args[i])
		}
	}

	if len(sourceFiles) == 0 {
		return nil, nil, fmt.Errorf("no Go source files specified")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	return &buildConfig{
		sourceFiles: sourceFiles,
		buildFlags:  buildFlags,
		workDir:     cwd,
		verbose:     verbose,
	}, programArgs, nil
}

// buildTemporary builds the instrumented program into a temporary file
// and returns its path.
func buildTemporary(ctx context.Context, config *buildConfig, out *OutputFormatter) (string, error) {
	tmp, err := os.CreateTemp("", "functrace-run-*")
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to create temp file", err)
	}
	path := tmp.Name()
	_ = tmp.Close()

	config.outputFile = path
	if err := buildInstrumented(ctx, config, out); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// executeBinary runs the program and returns its exit code.
func executeBinary(ctx context.Context, binary string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	fmt.Fprintf(stderr, "Failed to execute program: %v\n", err)
	return ExitFailure
}

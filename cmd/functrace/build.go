// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lzy107/functrace/cmd/functrace/instrument"
	"github.com/lzy107/functrace/cmd/functrace/linker"
)

// NewBuildCommand creates the build command.
//
// Flags are parsed by parseBuildArgs so that every 'go build' flag can be
// passed through unchanged.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build [-o output] [-v] [build flags] [files or directory]",
		Short: "Build a Go program with function tracing",
		Long: `Instrument the sources of a main package and build them.

The sources are copied into a temporary workspace, every function body
gets an entry/exit hook, and 'go build' runs there with a generated
go.mod that links the tracer runtime. Flags other than -o and -v are
passed to 'go build'.

Example:
  functrace build .
  functrace build -o app -ldflags="-s -w" main.go helper.go`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpRequested(args) {
				return cmd.Help()
			}
			cfg, err := parseBuildArgs(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			if err := buildInstrumented(cmd.Context(), cfg, rootOpts.formatter(cmd, FormatText)); err != nil {
				return err
			}
			if cfg.outputFile != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Built successfully: %s\n", cfg.outputFile)
			}
			return nil
		},
	}
}

func helpRequested(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			return true
		}
	}
	return false
}

// buildConfig holds configuration for the build command.
type buildConfig struct {
	// Source files or directories to instrument and build
	sourceFiles []string

	// Output binary name (from -o flag)
	outputFile string

	// Additional go build flags
	buildFlags []string

	// Working directory for build
	workDir string

	// Verbose output flag (-v)
	verbose bool
}

// parseBuildArgs parses command-line arguments for 'functrace build'.
//
// It separates:
//   - Source files (.go files or directories)
//   - Output file (-o flag)
//   - Go build flags (everything else)
func parseBuildArgs(args []string) (*buildConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	config := &buildConfig{
		sourceFiles: []string{},
		buildFlags:  []string{},
		workDir:     cwd,
	}

	expectingValue := false
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// Value of the previous flag, even if it starts with -
		// Example: -ldflags "-s -w"
		if expectingValue {
			config.buildFlags = append(config.buildFlags, arg)
			expectingValue = false
			continue
		}

		switch {
		case arg == "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("-o flag requires an argument")
			}
			i++
			config.outputFile = args[i]
		case strings.HasPrefix(arg, "-o="):
			config.outputFile = strings.TrimPrefix(arg, "-o=")
		case arg == "-v":
			config.verbose = true
		case strings.HasPrefix(arg, "-"):
			config.buildFlags = append(config.buildFlags, arg)
			expectingValue = needsValue(arg)
		default:
			config.sourceFiles = append(config.sourceFiles, arg)
		}
	}

	if len(config.sourceFiles) == 0 {
		config.sourceFiles = []string{"."}
	}
	return config, nil
}

// needsValue returns true if the go build flag expects a following value.
func needsValue(flag string) bool {
	valueFlags := []string{
		"-ldflags", "-gcflags", "-asmflags", "-gccgoflags",
		"-tags", "-installsuffix", "-buildmode", "-mod",
		"-modfile", "-overlay", "-pkgdir", "-toolexec",
	}
	for _, vf := range valueFlags {
		if flag == vf {
			return true
		}
	}
	return false
}

// workspace is a temporary module holding instrumented code.
type workspace struct {
	// Root directory of workspace, holds go.mod
	dir string

	// Source directory (where instrumented .go files go)
	srcDir string
}

// createWorkspace creates a temporary workspace for building instrumented code.
func createWorkspace() (*workspace, error) {
	dir, err := os.MkdirTemp("", "functrace-build-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create src directory: %w", err)
	}
	return &workspace{dir: dir, srcDir: srcDir}, nil
}

// cleanup removes the temporary workspace.
func (w *workspace) cleanup() {
	if w.dir != "" {
		_ = os.RemoveAll(w.dir)
	}
}

// link writes the workspace go.mod and resolves its dependencies.
func (w *workspace) link(ctx context.Context, sourceDir string, stdout, stderr io.Writer) error {
	root, err := linker.FindModuleRoot()
	switch {
	case errors.Is(err, linker.ErrNoModuleRoot):
		slog.Debug("functrace source tree not found, using the published module")
		root = ""
	case err != nil:
		return err
	default:
		slog.Debug("linking local tracer runtime", "root", root)
	}

	if _, err := linker.WriteGoMod(w.dir, linker.Options{Root: root, SourceDir: sourceDir}); err != nil {
		return err
	}
	if gomod := linker.FindGoMod(sourceDir); gomod != "" {
		w.copyGoSum(filepath.Join(filepath.Dir(gomod), "go.sum"))
	}

	tidy := exec.CommandContext(ctx, "go", "mod", "tidy")
	tidy.Dir = w.dir
	tidy.Stdout = stdout
	tidy.Stderr = stderr
	if err := tidy.Run(); err != nil {
		return fmt.Errorf("failed to tidy go.mod: %w", err)
	}
	return nil
}

// copyGoSum seeds the workspace with the user's checksums so tidy does
// not refetch them. A missing go.sum is not an error.
func (w *workspace) copyGoSum(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(w.dir, "go.sum"), data, 0o644); err != nil {
		slog.Debug("go.sum not copied", "err", err)
	}
}

// build runs 'go build' on the instrumented code in the workspace.
func (w *workspace) build(ctx context.Context, config *buildConfig, stdout, stderr io.Writer) error {
	args := []string{"build"}
	if config.outputFile != "" {
		outputPath := config.outputFile
		if !filepath.IsAbs(outputPath) {
			outputPath = filepath.Join(config.workDir, outputPath)
		}
		args = append(args, "-o", outputPath)
	}
	args = append(args, config.buildFlags...)
	args = append(args, ".")

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = w.srcDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// buildInstrumented runs the whole pipeline: instrument, link, build.
func buildInstrumented(ctx context.Context, config *buildConfig, out *OutputFormatter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out.Verbose = out.Verbose || config.verbose

	ws, err := createWorkspace()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create workspace", err)
	}
	defer ws.cleanup()

	sourceDir, err := instrumentSources(config, ws.srcDir, out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to instrument sources", err)
	}
	if err := ws.link(ctx, sourceDir, out.ErrWriter, out.ErrWriter); err != nil {
		return WrapExitError(ExitCommandError, "failed to link tracer runtime", err)
	}
	if err := ws.build(ctx, config, out.Writer, out.ErrWriter); err != nil {
		return WrapExitError(ExitCommandError, "build failed", err)
	}
	return nil
}

// instrumentSources instruments all source files into dstDir and returns
// the directory of the first source, whose go.mod governs the build.
func instrumentSources(config *buildConfig, dstDir string, out *OutputFormatter) (string, error) {
	goFiles, err := collectGoFiles(config.sourceFiles, config.workDir)
	if err != nil {
		return "", fmt.Errorf("failed to collect source files: %w", err)
	}
	if len(goFiles) == 0 {
		return "", fmt.Errorf("no Go source files found")
	}

	var total instrument.InstrumentStats
	for _, srcPath := range goFiles {
		result, err := instrument.InstrumentFile(srcPath, nil)
		if err != nil {
			return "", fmt.Errorf("failed to instrument %s: %w", srcPath, err)
		}

		// Flatten: the workspace holds a single package.
		outPath := filepath.Join(dstDir, filepath.Base(srcPath))
		if err := os.WriteFile(outPath, []byte(result.Code), 0o644); err != nil {
			return "", fmt.Errorf("failed to write instrumented file %s: %w", outPath, err)
		}

		s := result.Stats
		out.VerboseLog("instrumented %s: %d functions, %d literals, %d skipped", srcPath, s.Functions, s.Literals, s.Skipped)
		total.Functions += s.Functions
		total.Literals += s.Literals
		total.Skipped += s.Skipped
		total.Main = total.Main || s.Main
	}

	slog.Info("sources instrumented", "files", len(goFiles), "hooks", total.Total(), "skipped", total.Skipped)
	if !total.Main {
		slog.Warn("no main function instrumented; the trace is only written if the program calls Fini")
	}
	return filepath.Dir(goFiles[0]), nil
}

// collectGoFiles finds all .go files from the given sources.
//
// Sources can be:
//   - .go files directly
//   - directories (scans for .go files)
//   - "." for current directory
func collectGoFiles(sources []string, workDir string) ([]string, error) {
	var goFiles []string

	for _, src := range sources {
		srcPath := src
		if !filepath.IsAbs(srcPath) {
			srcPath = filepath.Join(workDir, src)
		}

		info, err := os.Stat(srcPath)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", src, err)
		}

		if !info.IsDir() {
			if strings.HasSuffix(srcPath, ".go") {
				goFiles = append(goFiles, srcPath)
			}
			continue
		}

		entries, err := os.ReadDir(srcPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read directory %s: %w", srcPath, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			goFiles = append(goFiles, filepath.Join(srcPath, name))
		}
	}
	return goFiles, nil
}

// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linker makes the tracer runtime importable from instrumented code.
//
// Instrumented sources are built in a temporary workspace outside the
// user's module. The workspace gets a generated go.mod that
//   - requires the functrace module, replaced by the local checkout when
//     the tool runs from a source tree,
//   - requires the user's module, replaced by its directory, so sibling
//     packages still resolve,
//   - carries the user's own require and replace directives, with
//     relative replacement paths made absolute.
package linker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

const (
	// ModulePath is the module path of the tracer.
	ModulePath = "github.com/lzy107/functrace"

	// WorkspaceModule is the module path of the generated workspace.
	WorkspaceModule = "instrumented"

	// GoVersion is written to the go directive of the workspace go.mod.
	GoVersion = "1.24"

	// localVersion is the pseudo version required for replaced modules.
	localVersion = "v0.0.0"
)

// ErrNoModuleRoot is returned when no functrace source tree can be found.
var ErrNoModuleRoot = errors.New("functrace module root not found")

// TracePackagePath returns the import path instrumented code calls into.
//
// Returns: "github.com/lzy107/functrace/trace"
func TracePackagePath() string {
	return ModulePath + "/trace"
}

// FindModuleRoot finds the root directory of a functrace source tree.
//
// It walks up from the working directory, then looks next to the running
// executable, for a go.mod declaring ModulePath. A go.mod of any other
// module does not match, so the user's project is never mistaken for it.
func FindModuleRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if root, ok := walkUp(cwd, isModuleRoot); ok {
		return root, nil
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		for _, dir := range []string{exeDir, filepath.Dir(exeDir), filepath.Dir(filepath.Dir(exeDir))} {
			if isModuleRoot(dir) {
				return dir, nil
			}
		}
	}
	return "", ErrNoModuleRoot
}

func isModuleRoot(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return false
	}
	return modfile.ModulePath(data) == ModulePath
}

// FindGoMod returns the path of the go.mod governing startDir, or "" if
// there is none.
func FindGoMod(startDir string) string {
	root, ok := walkUp(startDir, func(dir string) bool {
		_, err := os.Stat(filepath.Join(dir, "go.mod"))
		return err == nil
	})
	if !ok {
		return ""
	}
	return filepath.Join(root, "go.mod")
}

func walkUp(dir string, match func(string) bool) (string, bool) {
	for {
		if match(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Options controls workspace go.mod generation.
type Options struct {
	// Root is the functrace source tree. Empty means the published module
	// is resolved by the go command.
	Root string

	// SourceDir is the directory of the sources being instrumented. Its
	// go.mod, if any, contributes requirements and replacements.
	SourceDir string
}

// GoMod builds the workspace go.mod content.
func GoMod(opts Options) ([]byte, error) {
	f := new(modfile.File)
	if err := f.AddModuleStmt(WorkspaceModule); err != nil {
		return nil, err
	}
	if err := f.AddGoStmt(GoVersion); err != nil {
		return nil, err
	}

	if opts.SourceDir != "" {
		if gomod := FindGoMod(opts.SourceDir); gomod != "" {
			if err := inherit(f, gomod); err != nil {
				return nil, err
			}
		}
	}

	if opts.Root != "" {
		if err := f.AddRequire(ModulePath, localVersion); err != nil {
			return nil, err
		}
		if err := f.AddReplace(ModulePath, "", opts.Root, ""); err != nil {
			return nil, err
		}
	}

	f.Cleanup()
	return modfile.Format(f.Syntax), nil
}

// inherit copies the user's module and its directives into f.
func inherit(f *modfile.File, gomod string) error {
	data, err := os.ReadFile(gomod)
	if err != nil {
		return fmt.Errorf("read %s: %w", gomod, err)
	}
	user, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return fmt.Errorf("parse %s: %w", gomod, err)
	}

	dir, err := filepath.Abs(filepath.Dir(gomod))
	if err != nil {
		return err
	}

	// The functrace checkout itself is replaced by the caller.
	if user.Module != nil && user.Module.Mod.Path != ModulePath {
		if err := f.AddRequire(user.Module.Mod.Path, localVersion); err != nil {
			return err
		}
		if err := f.AddReplace(user.Module.Mod.Path, "", dir, ""); err != nil {
			return err
		}
	}

	for _, req := range user.Require {
		if err := f.AddRequire(req.Mod.Path, req.Mod.Version); err != nil {
			return err
		}
	}

	for _, rep := range user.Replace {
		newPath := rep.New.Path
		if rep.New.Version == "" && isLocalPath(newPath) && !filepath.IsAbs(newPath) {
			newPath = filepath.Join(dir, newPath)
		}
		if err := f.AddReplace(rep.Old.Path, rep.Old.Version, newPath, rep.New.Version); err != nil {
			return err
		}
	}
	return nil
}

// WriteGoMod writes the workspace go.mod into dir and returns its path.
func WriteGoMod(dir string, opts Options) (string, error) {
	data, err := GoMod(opts)
	if err != nil {
		return "", fmt.Errorf("failed to build go.mod: %w", err)
	}
	path := filepath.Join(dir, "go.mod")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write go.mod: %w", err)
	}
	return path, nil
}

// isLocalPath reports whether a replacement is a filesystem path rather
// than a module path.
func isLocalPath(path string) bool {
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		return true
	}
	if filepath.IsAbs(path) {
		return true
	}
	// Windows drive letter (C:\)
	return len(path) >= 2 && path[1] == ':'
}

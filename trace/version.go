// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import "github.com/lzy107/functrace/internal/trace/export"

// Version information for the function tracer.
const (
	// Version is the current version of the tracer runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the tracer.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Schema is the trace file schema version written by Fini.
	Schema int

	// Enabled indicates whether the hooks are recording.
	Enabled bool
}

// GetInfo returns information about the tracer runtime.
func GetInfo() Info {
	return Info{
		Version: Version,
		Schema:  export.SchemaVersion,
		Enabled: currentEnabled(),
	}
}

// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned for a format name that is not recognized.
var ErrUnknownFormat = errors.New("unknown trace format")

// Format selects the on-disk encoding of a trace.
type Format uint8

const (
	FormatAuto    Format = iota // pick by file extension
	FormatJSON                  // indented JSON document
	FormatMsgpack               // MessagePack document
)

// String returns the format name as accepted by ParseFormat.
func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatJSON:
		return "json"
	case FormatMsgpack:
		return "msgpack"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	default:
		return FormatAuto, fmt.Errorf("%w: %q (expected: auto|json|msgpack)", ErrUnknownFormat, s)
	}
}

// FormatFor returns the format implied by a file name.
// .msgpack and .mp select MessagePack, anything else JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// Resolve replaces FormatAuto with the format implied by path.
func (f Format) Resolve(path string) Format {
	if f == FormatAuto {
		return FormatFor(path)
	}
	return f
}

// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event defines the trace event record.
package event

import (
	"fmt"
	"strings"
)

// Kind distinguishes function entry from function exit.
type Kind uint8

const (
	// KindEntry marks entry into an instrumented function.
	KindEntry Kind = iota + 1
	// KindExit marks exit from an instrumented function.
	KindExit
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// ParseKind converts a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "entry":
		return KindEntry, nil
	case "exit":
		return KindExit, nil
	default:
		return 0, fmt.Errorf("invalid event type: %q (expected: entry|exit)", s)
	}
}

// Event is one recorded function entry or exit.
//
// Events are immutable once the recorder has published them.
type Event struct {
	Kind      Kind    // entry or exit
	Func      uintptr // address of the instrumented function, never dereferenced
	Caller    uintptr // address of the call site, never dereferenced
	Timestamp uint64  // microseconds since the Unix epoch
	ThreadID  uint64  // goroutine id of the producer
	Depth     int64   // entry: depth before the call; exit: depth after return
	Seq       uint64  // global sequence number, unique and strictly increasing
}

// IsEntry reports whether the event marks a function entry.
func (e Event) IsEntry() bool {
	return e.Kind == KindEntry
}

// String renders the event for diagnostics.
func (e Event) String() string {
	return fmt.Sprintf("#%d %s func=%#x caller=%#x tid=%#x depth=%d t=%d",
		e.Seq, e.Kind, e.Func, e.Caller, e.ThreadID, e.Depth, e.Timestamp)
}

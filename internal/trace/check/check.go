// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package check verifies and summarizes recorded traces.
//
// Verify replays each goroutine's events in sequence order against a
// stack of open entries. An exit pairs with the innermost open entry that
// has the same function, caller and depth. Entries still open at the end
// and gaps in the sequence ids are truncation (early termination, full
// buffer) rather than errors, as are events the recorder reported as
// dropped; exits without an entry, exits that match no
// open entry and repeated sequence ids are violations.
package check

import (
	"cmp"
	"slices"

	"github.com/lzy107/functrace/internal/trace/clock"
	"github.com/lzy107/functrace/internal/trace/event"
)

// Pair is a matched entry/exit.
type Pair struct {
	Entry event.Event
	Exit  event.Event
}

// Duration returns the inclusive time spent in the call, in microseconds.
func (p Pair) Duration() uint64 {
	return clock.Elapsed(p.Entry.Timestamp, p.Exit.Timestamp)
}

// Mismatch is an exit that matched none of the open entries.
// Top is the innermost open entry at that point.
type Mismatch struct {
	Top  event.Event
	Exit event.Event
}

// Gap is an inclusive range of sequence ids absent from the trace.
type Gap struct {
	First uint64
	Last  uint64
}

// Len returns the number of ids in the gap.
func (g Gap) Len() uint64 {
	return g.Last - g.First + 1
}

// Report is the result of Verify.
type Report struct {
	Events  int
	Threads int
	Pairs   int

	Open       []event.Event // entries never exited
	Orphans    []event.Event // exits with no open entry
	Mismatches []Mismatch
	Gaps       []Gap
	Duplicates []uint64 // sequence ids seen more than once

	// Dropped is the recorder's count of events it did not store. Drops
	// past capacity take the highest ids, so they never show up as Gaps.
	Dropped uint64
}

// OK reports whether the trace has no violations. Truncation is allowed.
func (r *Report) OK() bool {
	return len(r.Orphans) == 0 && len(r.Mismatches) == 0 && len(r.Duplicates) == 0
}

// Complete reports whether the trace has no violations and no truncation.
func (r *Report) Complete() bool {
	return r.OK() && len(r.Open) == 0 && len(r.Gaps) == 0 && r.Dropped == 0
}

// Missing returns the total number of sequence ids covered by gaps.
func (r *Report) Missing() uint64 {
	var n uint64
	for _, g := range r.Gaps {
		n += g.Len()
	}
	return n
}

// Verify checks stack discipline per goroutine and sequence id integrity.
func Verify(events []event.Event) *Report {
	r, _ := walk(events)
	return r
}

// VerifyTrace is Verify for a trace whose recorder dropped the given
// number of events. Any drop makes the trace incomplete.
func VerifyTrace(events []event.Event, dropped uint64) *Report {
	r := Verify(events)
	r.Dropped = dropped
	return r
}

// Pairs returns every matched entry/exit pair, ordered by exit sequence id.
func Pairs(events []event.Event) []Pair {
	_, pairs := walk(events)
	return pairs
}

func walk(events []event.Event) (*Report, []Pair) {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b event.Event) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	r := &Report{Events: len(sorted)}
	var pairs []Pair

	uniq := sorted[:0]
	var next uint64
	for _, ev := range sorted {
		if len(uniq) > 0 && ev.Seq == uniq[len(uniq)-1].Seq {
			if len(r.Duplicates) == 0 || r.Duplicates[len(r.Duplicates)-1] != ev.Seq {
				r.Duplicates = append(r.Duplicates, ev.Seq)
			}
			continue
		}
		if ev.Seq > next {
			r.Gaps = append(r.Gaps, Gap{First: next, Last: ev.Seq - 1})
		}
		next = ev.Seq + 1
		uniq = append(uniq, ev)
	}

	stacks := make(map[uint64][]event.Event)
	for _, ev := range uniq {
		stack := stacks[ev.ThreadID]
		if ev.IsEntry() {
			stacks[ev.ThreadID] = append(stack, ev)
			continue
		}

		if len(stack) == 0 {
			r.Orphans = append(r.Orphans, ev)
			stacks[ev.ThreadID] = stack
			continue
		}

		k := len(stack) - 1
		for ; k >= 0; k-- {
			if matches(stack[k], ev) {
				break
			}
		}
		if k < 0 {
			r.Mismatches = append(r.Mismatches, Mismatch{Top: stack[len(stack)-1], Exit: ev})
			continue
		}

		// Entries above the match lost their exits.
		r.Open = append(r.Open, stack[k+1:]...)
		pairs = append(pairs, Pair{Entry: stack[k], Exit: ev})
		stacks[ev.ThreadID] = stack[:k]
	}

	r.Threads = len(stacks)
	for _, stack := range stacks {
		r.Open = append(r.Open, stack...)
	}
	slices.SortFunc(r.Open, func(a, b event.Event) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	r.Pairs = len(pairs)
	return r, pairs
}

func matches(entry, exit event.Event) bool {
	return entry.Func == exit.Func && entry.Caller == exit.Caller && entry.Depth == exit.Depth
}

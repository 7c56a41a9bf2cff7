// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"cmp"
	"slices"

	"github.com/lzy107/functrace/internal/trace/clock"
	"github.com/lzy107/functrace/internal/trace/event"
)

// ThreadSummary aggregates the events of one goroutine.
type ThreadSummary struct {
	ThreadID uint64
	Entries  int
	Exits    int
	MaxDepth int64  // deepest entry depth seen
	First    uint64 // earliest timestamp
	Last     uint64 // latest timestamp
}

// FuncSummary aggregates the matched calls of one function.
type FuncSummary struct {
	Func  uintptr
	Calls int
	Total uint64 // inclusive microseconds over all calls
	Max   uint64 // longest single call
}

// Summary is the result of Summarize.
type Summary struct {
	Events  int
	Span    uint64 // microseconds between the first and last timestamp
	Threads []ThreadSummary
	Funcs   []FuncSummary
}

// Summarize aggregates events per goroutine and per function.
//
// Threads are ordered by id. Functions are ordered by total inclusive
// time, longest first, with ties broken by address.
func Summarize(events []event.Event) *Summary {
	s := &Summary{Events: len(events)}
	if len(events) == 0 {
		return s
	}

	byThread := make(map[uint64]*ThreadSummary)
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events {
		first = min(first, ev.Timestamp)
		last = max(last, ev.Timestamp)

		ts, ok := byThread[ev.ThreadID]
		if !ok {
			ts = &ThreadSummary{
				ThreadID: ev.ThreadID,
				First:    ev.Timestamp,
				Last:     ev.Timestamp,
			}
			byThread[ev.ThreadID] = ts
		}
		if ev.IsEntry() {
			ts.Entries++
			ts.MaxDepth = max(ts.MaxDepth, ev.Depth)
		} else {
			ts.Exits++
		}
		ts.First = min(ts.First, ev.Timestamp)
		ts.Last = max(ts.Last, ev.Timestamp)
	}
	s.Span = clock.Elapsed(first, last)

	for _, ts := range byThread {
		s.Threads = append(s.Threads, *ts)
	}
	slices.SortFunc(s.Threads, func(a, b ThreadSummary) int {
		return cmp.Compare(a.ThreadID, b.ThreadID)
	})

	byFunc := make(map[uintptr]*FuncSummary)
	for _, p := range Pairs(events) {
		fs, ok := byFunc[p.Entry.Func]
		if !ok {
			fs = &FuncSummary{Func: p.Entry.Func}
			byFunc[p.Entry.Func] = fs
		}
		d := p.Duration()
		fs.Calls++
		fs.Total += d
		fs.Max = max(fs.Max, d)
	}
	for _, fs := range byFunc {
		s.Funcs = append(s.Funcs, *fs)
	}
	slices.SortFunc(s.Funcs, func(a, b FuncSummary) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Func, b.Func)
	})
	return s
}

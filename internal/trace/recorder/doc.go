// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recorder implements the shared trace buffer.
//
// The buffer is a fixed array of slots plus one atomic counter. Record
// claims a slot with a single fetch-and-add, writes the event into it and
// publishes it with an atomic store on the slot's state word. No locks are
// taken on the hot path and writers never wait for each other.
//
// Overflow policy: the counter always advances. An index at or past
// capacity is a dropped event, so with capacity 5 and six attempts the
// buffer holds sequence ids 0..4 and id 5 is counted as dropped.
//
// Lifecycle:
//
//	r := recorder.New(capacity)
//	r.Record(event.KindEntry, fn, caller, tid, depth) // from any goroutine
//	events, err := r.Drain()                          // exactly once
package recorder

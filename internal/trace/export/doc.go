// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package export serializes a drained trace buffer.
//
// A trace file holds one Document:
//
//	{
//	  "version": 1,
//	  "session": "0192f7c4-...",
//	  "total_time": 201342,
//	  "recorded": 8,
//	  "dropped": 0,
//	  "records": [
//	    {"type": "entry", "func": "0x4a2f10", "caller": "0x4a3c55",
//	     "timestamp": 1729338000000000, "thread_id": "0x12",
//	     "depth": 0, "record_id": 0},
//	    ...
//	  ]
//	}
//
// Addresses and thread ids are hexadecimal strings in JSON. The
// MessagePack encoding carries the same document with those fields as
// plain unsigned integers.
package export

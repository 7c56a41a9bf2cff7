// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_NowMicros(t *testing.T) {
	before := uint64(time.Now().UnixMicro())
	got := System{}.NowMicros()
	after := uint64(time.Now().UnixMicro())

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestManual(t *testing.T) {
	m := NewManual(100)
	assert.Equal(t, uint64(100), m.NowMicros())

	assert.Equal(t, uint64(150), m.Advance(50))
	assert.Equal(t, uint64(150), m.NowMicros())

	m.Set(10)
	assert.Equal(t, uint64(10), m.NowMicros())
}

func TestManual_ConcurrentAdvance(t *testing.T) {
	m := NewManual(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Advance(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(5000), m.NowMicros())
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		name       string
		start, end uint64
		want       uint64
	}{
		{"forward", 10, 25, 15},
		{"same", 7, 7, 0},
		{"backwards", 30, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Elapsed(tt.start, tt.end))
		})
	}
}

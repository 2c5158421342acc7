// Copyright 2026 LatticeQ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ringbuffer provides a bounded in-memory history buffer. The
// orchestrator keeps the most recent job transitions in one for the
// inspection API; old entries are overwritten, never flushed to disk.
package ringbuffer

import "sync"

// History is a fixed-capacity append-only buffer that retains the newest
// entries. Safe for concurrent use.
type History[T any] struct {
	mu    sync.RWMutex
	buf   []T
	next  int
	count int
}

// NewHistory creates a history retaining the last capacity entries.
func NewHistory[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = 256
	}
	return &History[T]{buf: make([]T, capacity)}
}

// Append records one entry, evicting the oldest once full.
func (h *History[T]) Append(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = v
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Len returns the number of retained entries.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Snapshot returns the retained entries, newest first.
func (h *History[T]) Snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]T, 0, h.count)
	for i := 1; i <= h.count; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

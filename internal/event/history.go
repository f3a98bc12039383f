// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package event

import "sync"

// History is a bounded ring of delivered events retained for replay and
// debugging. Oldest entries are overwritten once the ring is full.
type History struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
}

// NewHistory creates a ring holding up to size delivered events.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]Event, size)}
}

// Record appends a delivered event, evicting the oldest when full.
func (h *History) Record(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Last returns up to n most recent events, oldest first.
func (h *History) Last(n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > h.count {
		n = h.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := range n {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

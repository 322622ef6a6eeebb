package logging

import (
	"sync"
	"time"
)

// LogEntry is one log record as kept for the log stream.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries and numbers every entry it
// receives, starting at 1. Numbers keep increasing after old entries are
// overwritten, so readers can resume from the last number they saw.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
	lastSeq uint64
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, max(size, 1))}
}

// Write stores entry, overwriting the oldest one when full, and returns it
// with its sequence number set.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.lastSeq++
	entry.Seq = rb.lastSeq
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
	return entry
}

// ReadSince returns the retained entries numbered after seq, oldest first.
// ReadSince(0) returns everything retained.
func (rb *RingBuffer) ReadSince(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	oldest := rb.lastSeq - uint64(rb.count) + 1
	if rb.count == 0 || seq >= rb.lastSeq {
		return nil
	}
	skip := 0
	if seq >= oldest {
		skip = int(seq - oldest + 1)
	}

	start := rb.head - rb.count
	if start < 0 {
		start += len(rb.entries)
	}
	out := make([]LogEntry, 0, rb.count-skip)
	for i := skip; i < rb.count; i++ {
		out = append(out, rb.entries[(start+i)%len(rb.entries)])
	}
	return out
}

// LastSeq returns the number of the newest entry, 0 before any write.
func (rb *RingBuffer) LastSeq() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lastSeq
}

// Count returns the number of retained entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

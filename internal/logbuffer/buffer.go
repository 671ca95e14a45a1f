// Package logbuffer keeps the most recent worker log entries in memory so they
// can be served over HTTP without enabling file logging.
package logbuffer

import (
	"sync"
	"time"
)

const (
	// DefaultCapacity is used when a non-positive capacity is requested
	DefaultCapacity = 1000
	// MaxMessageLength caps a single stored message in bytes
	MaxMessageLength = 2048
)

// Entry is one buffered log record
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Caller    string    `json:"caller"`
}

// Ring is a fixed-size, goroutine-safe store of log entries. Once full, the
// oldest entry is overwritten.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	size    int
}

// New creates a ring with the given capacity
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Append stores an entry, truncating oversized messages
func (r *Ring) Append(e Entry) {
	if len(e.Message) > MaxMessageLength {
		e.Message = e.Message[:MaxMessageLength-3] + "..."
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
}

// Since returns entries at or after t, oldest first
func (r *Ring) Since(t time.Time) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return nil
	}

	start := 0
	if r.size == len(r.entries) {
		start = r.next
	}

	out := make([]Entry, 0, r.size)
	for i := 0; i < r.size; i++ {
		e := r.entries[(start+i)%len(r.entries)]
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

// All returns every buffered entry, oldest first
func (r *Ring) All() []Entry {
	return r.Since(time.Time{})
}

// Len returns the number of buffered entries
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the ring capacity
func (r *Ring) Cap() int {
	return len(r.entries)
}

// Reset drops all entries
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.size = 0
}

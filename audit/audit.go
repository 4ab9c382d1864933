package audit

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained when New is given a
// non-positive capacity.
const DefaultCapacity = 1000

// Entry records a single capability invocation.
type Entry struct {
	// Timestamp is when the invocation started.
	Timestamp time.Time `json:"timestamp"`

	// Service is the name of the remote service.
	Service string `json:"service"`

	// Capability is the remote capability that was invoked.
	Capability string `json:"capability"`

	// Args contains the arguments passed to the capability.
	Args map[string]any `json:"args,omitempty"`

	// DurationMs is the invocation time in milliseconds.
	DurationMs int64 `json:"durationMs"`

	// Error contains the error message if the invocation failed.
	Error string `json:"error,omitempty"`
}

// OK reports whether the invocation succeeded.
func (e Entry) OK() bool {
	return e.Error == ""
}

// Log is a fixed-capacity ring of entries, newest last.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Record never fails.
// - Ownership: Recent returns a caller-owned copy.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	total   uint64
}

// New creates a Log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

// Record appends an entry, dropping the oldest one when the log is full.
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next++
	l.total++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// Recent returns up to limit of the newest entries in insertion order.
// A non-positive limit returns everything retained.
func (l *Log) Recent(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.lenLocked()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	start := l.next - limit
	if start < 0 {
		start += len(l.entries)
	}
	for i := 0; i < limit; i++ {
		out = append(out, l.entries[(start+i)%len(l.entries)])
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lenLocked()
}

// Total returns the number of entries ever recorded, including dropped ones.
func (l *Log) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return len(l.entries)
}

func (l *Log) lenLocked() int {
	if l.full {
		return len(l.entries)
	}
	return l.next
}

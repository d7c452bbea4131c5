// Package logring provides the bounded in-memory log store kept per
// supervised process. Each process owns one Ring for the lifetime of its
// registry entry; writers (one per output stream) and readers are
// serialized per ring but fully independent across rings.
package logring

import (
	"sync"
	"time"
)

// DefaultCapacity bounds per-process log retention when no explicit
// capacity is configured.
const DefaultCapacity = 1000

// Level is the severity attached to a captured log line.
type Level uint8

const (
	LevelDebug Level = 0
	LevelInfo  Level = 1
	LevelWarn  Level = 2
	LevelError Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Stream identifies which child output stream produced a line.
type Stream uint8

const (
	StreamStdout Stream = 0
	StreamStderr Stream = 1
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// Entry is one captured log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Stream  Stream    `json:"stream"`
	Message string    `json:"message"`
}

// Ring is a fixed-capacity FIFO log store. When full, appending evicts the
// oldest entry. Reads are non-destructive and return fresh copies.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	// next counts total appends; next % cap(entries) is the write index.
	next int
}

// New returns a Ring holding at most capacity entries. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Append stores e, evicting the oldest entry when the ring is full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.entries[r.next%len(r.entries)] = e
	r.next++
	r.mu.Unlock()
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffered()
}

func (r *Ring) buffered() int {
	if r.next > len(r.entries) {
		return len(r.entries)
	}
	return r.next
}

// Seq returns the total number of entries ever appended. It is the cursor
// for Since.
func (r *Ring) Seq() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Since returns the entries appended after cursor seq, oldest first, along
// with the new cursor. Entries already evicted are silently skipped.
func (r *Ring) Since(seq int) ([]Entry, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < r.next-len(r.entries) {
		seq = r.next - len(r.entries)
	}
	if seq >= r.next {
		return nil, r.next
	}
	out := make([]Entry, 0, r.next-seq)
	for i := seq; i < r.next; i++ {
		out = append(out, r.entries[i%len(r.entries)])
	}
	return out, r.next
}

// Tail returns up to n of the most recent entries together with the cursor
// for the next Since call, read atomically so no entry falls between the
// backlog and the cursor.
func (r *Ring) Tail(n int) ([]Entry, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last(n), r.next
}

// Last returns up to n of the most recent entries in chronological order.
// Fewer than n buffered entries is not an error; the caller receives what
// is available. The returned slice is owned by the caller.
func (r *Ring) Last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last(n)
}

func (r *Ring) last(n int) []Entry {
	cnt := r.buffered()
	if n < cnt {
		cnt = n
	}
	if cnt <= 0 {
		return []Entry{}
	}
	out := make([]Entry, 0, cnt)
	start := r.next - cnt
	for i := 0; i < cnt; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

// Package registry owns the table of supervised processes. It is the only
// place process identity lives: every entry is keyed by a numeric id that
// is assigned once and never reused while the daemon runs, with a secondary
// name index for lookups.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/process"
)

var (
	ErrNotFound      = errors.New("process not found")
	ErrDuplicateName = errors.New("process name already exists")
	ErrInvalidConfig = errors.New("invalid process config")
	ErrStillRunning  = errors.New("process is still running")
)

// Runtime is the mutable state of one supervised process. While the process
// is active it is owned exclusively by its supervisor handler; the registry
// only guards concurrent snapshot reads.
type Runtime struct {
	Status      process.Status
	PID         int
	StartedAt   time.Time
	Consecutive int           // consecutive restarts in the current crash streak
	NextDelay   time.Duration // backoff delay scheduled for the next respawn
	Restarts    uint32        // cumulative, never resets
	Memory      uint64        // last sampled RSS in bytes, best effort
}

// Entry binds a process id to its config, runtime state, and log ring. The
// ring lives exactly as long as the entry.
type Entry struct {
	ID      uint32
	Config  process.Config
	Runtime Runtime
	Ring    *logring.Ring
}

// Summary is the list()-level view of one process.
type Summary struct {
	ID       uint32         `json:"id"`
	Name     string         `json:"name"`
	PID      int            `json:"pid"`
	Status   process.Status `json:"status"`
	Memory   uint64         `json:"memory_bytes"`
	Uptime   time.Duration  `json:"uptime"`
	Restarts uint32         `json:"restart_count"`
}

// Registry is the thread-safe process table. Mutation is expected to flow
// through the supervisor's per-id executors; the registry's own lock only
// guarantees one mutation in flight at a time and consistent reads.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint32
	entries map[uint32]*Entry
	byName  map[string]uint32
	order   []uint32 // insertion order for list()

	ringCapacity int
}

// Option configures a Registry.
type Option func(*Registry)

// WithRingCapacity overrides the per-process log ring capacity.
func WithRingCapacity(n int) Option {
	return func(r *Registry) { r.ringCapacity = n }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		nextID:       1,
		entries:      make(map[uint32]*Entry),
		byName:       make(map[string]uint32),
		ringCapacity: logring.DefaultCapacity,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create inserts a new Stopped entry for cfg and returns its id. It never
// spawns anything.
func (r *Registry) Create(cfg process.Config) (uint32, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[cfg.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, cfg.Name)
	}
	id := r.nextID
	r.nextID++
	r.entries[id] = &Entry{
		ID:     id,
		Config: cfg,
		Ring:   logring.New(r.ringCapacity),
	}
	r.byName[cfg.Name] = id
	r.order = append(r.order, id)
	return id, nil
}

// Get returns a snapshot copy of the entry for id. The Ring pointer is
// shared (rings serialize their own access); everything else is a copy.
func (r *Registry) Get(id uint32) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *e, nil
}

// GetByName resolves a process name to its entry snapshot.
func (r *Registry) GetByName(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return *r.entries[id], nil
}

// Ring returns the log ring for id.
func (r *Registry) Ring(id uint32) (*logring.Ring, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e.Ring, nil
}

// List returns one Summary per live entry in insertion order. Every call
// allocates a fresh slice owned by the caller.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		out = append(out, summarize(e))
	}
	return out
}

func summarize(e *Entry) Summary {
	s := Summary{
		ID:       e.ID,
		Name:     e.Config.Name,
		PID:      e.Runtime.PID,
		Status:   e.Runtime.Status,
		Memory:   e.Runtime.Memory,
		Restarts: e.Runtime.Restarts,
	}
	if e.Runtime.Status.Alive() && !e.Runtime.StartedAt.IsZero() {
		s.Uptime = time.Since(e.Runtime.StartedAt)
	}
	return s
}

// Remove deletes the entry for id. The process must be Stopped or Errored;
// the caller is responsible for stopping it first. Removal releases the
// ring and the name atomically with respect to concurrent reads.
func (r *Registry) Remove(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if e.Runtime.Status.Alive() {
		return fmt.Errorf("%w: %s", ErrStillRunning, e.Config.Name)
	}
	delete(r.entries, id)
	delete(r.byName, e.Config.Name)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Update applies fn to the entry for id under the write lock. The
// supervisor's per-id executor is the only caller while a process is
// active, so fn never races another mutation of the same entry.
func (r *Registry) Update(id uint32, fn func(*Entry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	fn(e)
	return nil
}

// SetMemory records a best-effort memory sample for id. A missing id is not
// an error; the sampler can race a delete.
func (r *Registry) SetMemory(id uint32, bytes uint64) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.Runtime.Memory = bytes
	}
	r.mu.Unlock()
}

// Saved is the subset of an entry that survives a daemon restart.
type Saved struct {
	ID       uint32
	Config   process.Config
	Restarts uint32
	Status   process.Status // status at save time; load forces Stopped
}

// Snapshot returns the persistable view of every entry, in insertion order.
func (r *Registry) Snapshot() []Saved {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Saved, 0, len(r.order))
	for _, id := range r.order {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		out = append(out, Saved{
			ID:       e.ID,
			Config:   e.Config,
			Restarts: e.Runtime.Restarts,
			Status:   e.Runtime.Status,
		})
	}
	return out
}

// Restore repopulates the registry from a persisted snapshot. Every entry
// comes back Stopped regardless of its saved status, ids and cumulative
// restart counts are preserved, and the id watermark advances past the
// highest restored id so fresh ids never collide. Restore is only valid on
// an empty registry.
func (r *Registry) Restore(saved []Saved) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) != 0 {
		return errors.New("restore into non-empty registry")
	}
	for _, s := range saved {
		cfg := s.Config
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if _, ok := r.byName[cfg.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateName, cfg.Name)
		}
		r.entries[s.ID] = &Entry{
			ID:      s.ID,
			Config:  cfg,
			Runtime: Runtime{Status: process.Stopped, Restarts: s.Restarts},
			Ring:    logring.New(r.ringCapacity),
		}
		r.byName[cfg.Name] = s.ID
		r.order = append(r.order, s.ID)
		if s.ID >= r.nextID {
			r.nextID = s.ID + 1
		}
	}
	return nil
}

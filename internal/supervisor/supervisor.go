// Package supervisor is the concurrency core of the daemon. It spawns OS
// processes for registry entries, reaps their exits, captures their output
// into per-process log rings, and applies the restart policy. All mutation
// for a given process id flows through that id's handler goroutine, so
// exit, stop, and restart events never interleave for one process.
package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

var (
	ErrAlreadyRunning = errors.New("process is already running")
	ErrSpawnFailed    = errors.New("failed to spawn process")
)

// EventType classifies lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
	EventErrored EventType = "errored"
)

// Event is a lifecycle notification delivered to the configured observer
// (metrics, history sinks). Observers must not block.
type Event struct {
	Type EventType
	ID   uint32
	Name string
	PID  int
	At   time.Time
	Err  error
}

// LogWriterFactory returns optional on-disk mirror writers for a process's
// stdout and stderr. Either writer may be nil.
type LogWriterFactory func(cfg *process.Config) (stdout, stderr io.WriteCloser)

// Supervisor owns the registry's runtime state and the per-process handler
// goroutines.
type Supervisor struct {
	reg        *registry.Registry
	lookup     process.LookupFunc
	notify     func(Event)
	logWriters LogWriterFactory

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers map[uint32]*handler
	wg       sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLookup overrides the interpreter lookup used at spawn time.
func WithLookup(fn process.LookupFunc) Option {
	return func(s *Supervisor) { s.lookup = fn }
}

// WithNotify installs a lifecycle event observer.
func WithNotify(fn func(Event)) Option {
	return func(s *Supervisor) { s.notify = fn }
}

// WithLogWriters installs a factory for on-disk stdout/stderr mirrors.
func WithLogWriters(fn LogWriterFactory) Option {
	return func(s *Supervisor) { s.logWriters = fn }
}

func New(reg *registry.Registry, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		reg:      reg,
		lookup:   process.DefaultLookup,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[uint32]*handler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry exposes the underlying table for read paths (list, persistence).
func (s *Supervisor) Registry() *registry.Registry { return s.reg }

func (s *Supervisor) emit(e Event) {
	if s.notify != nil {
		e.At = time.Now()
		s.notify(e)
	}
}

// Create registers cfg without spawning. The new entry is Stopped.
func (s *Supervisor) Create(cfg process.Config) (uint32, error) {
	return s.reg.Create(cfg)
}

// Start launches a previously created process. Starting an already live
// process returns ErrAlreadyRunning.
func (s *Supervisor) Start(id uint32) error {
	h, err := s.ensureHandler(id)
	if err != nil {
		return err
	}
	return h.send(ctrlMsg{kind: ctrlStart})
}

// StartNew registers cfg and immediately spawns it. On spawn failure the
// entry remains registered with status Errored so the failure is
// inspectable; the id is returned either way once creation succeeded.
func (s *Supervisor) StartNew(cfg process.Config) (uint32, error) {
	id, err := s.reg.Create(cfg)
	if err != nil {
		return 0, err
	}
	return id, s.Start(id)
}

// Stop gracefully stops a process: sig (0 = SIGTERM) to the process group,
// escalating to SIGKILL after timeout (0 = the config's kill timeout). A
// stop on a process that is not running is a no-op.
func (s *Supervisor) Stop(id uint32, sig syscall.Signal, timeout time.Duration) error {
	h := s.getHandler(id)
	if h == nil {
		// Never spawned under this daemon: verify it exists, then done.
		_, err := s.reg.Get(id)
		return err
	}
	return h.send(ctrlMsg{kind: ctrlStop, sig: sig, timeout: timeout})
}

// Restart stops the process if alive and spawns it fresh, resetting the
// consecutive-restart streak.
func (s *Supervisor) Restart(id uint32) error {
	h, err := s.ensureHandler(id)
	if err != nil {
		return err
	}
	return h.send(ctrlMsg{kind: ctrlRestart})
}

// Delete force-stops the process if needed and removes its registry entry,
// releasing the log ring. The handler stays tracked until the remove
// succeeds, so a failed delete leaves the process fully manageable.
func (s *Supervisor) Delete(id uint32) error {
	e, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	h := s.getHandler(id)
	if h != nil {
		_ = h.send(ctrlMsg{kind: ctrlStop, timeout: e.Config.KillTimeout})
	}
	if err := s.reg.Remove(id); err != nil {
		return err
	}
	if h != nil {
		s.mu.Lock()
		if s.handlers[id] == h {
			delete(s.handlers, id)
		}
		s.mu.Unlock()
		h.close()
	}
	return nil
}

// List returns insertion-ordered summaries; the slice is caller-owned.
func (s *Supervisor) List() []registry.Summary { return s.reg.List() }

// Get returns the entry snapshot for id.
func (s *Supervisor) Get(id uint32) (registry.Entry, error) { return s.reg.Get(id) }

// Logs returns up to n most recent log entries for id in chronological
// order; the slice is caller-owned.
func (s *Supervisor) Logs(id uint32, n int) ([]logring.Entry, error) {
	ring, err := s.reg.Ring(id)
	if err != nil {
		return nil, err
	}
	return ring.Last(n), nil
}

// NoteMemory records a memory sample and enforces the config's memory
// limit. Called by the metrics sampler.
func (s *Supervisor) NoteMemory(id uint32, bytes uint64) {
	s.reg.SetMemory(id, bytes)
	e, err := s.reg.Get(id)
	if err != nil || e.Config.MaxMemory == 0 || bytes <= e.Config.MaxMemory {
		return
	}
	if !e.Runtime.Status.Alive() {
		return
	}
	slog.Warn("memory limit exceeded, restarting",
		"process", e.Config.Name, "rss", bytes, "limit", e.Config.MaxMemory)
	go func() { _ = s.Restart(id) }()
}

// Shutdown stops every supervised process, waiting up to grace for each
// graceful exit, then terminates all handler goroutines.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	hs := make([]*handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.handlers = make(map[uint32]*handler)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range hs {
		wg.Add(1)
		go func(h *handler) {
			defer wg.Done()
			_ = h.send(ctrlMsg{kind: ctrlStop, timeout: grace})
			h.close()
		}(h)
	}
	wg.Wait()
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) getHandler(id uint32) *handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[id]
}

// ensureHandler creates and runs the per-id executor if missing.
func (s *Supervisor) ensureHandler(id uint32) (*handler, error) {
	if _, err := s.reg.Get(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handlers[id]; ok {
		return h, nil
	}
	h := newHandler(s, id)
	s.handlers[id] = h
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		h.run()
	}()
	return h, nil
}

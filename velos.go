// Package velos provides an embeddable process supervisor: define
// processes, start them, and velos keeps them alive according to their
// restart policy while capturing their output.
package velos

import (
	"net/http"
	"syscall"
	"time"

	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
	"github.com/Dave93/velos/internal/server"
	"github.com/Dave93/velos/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = process.Config

type Status = process.Status

type Summary = registry.Summary

type LogEntry = logring.Entry

// Supervisor is a thin facade over the internal supervisor, providing a
// stable public API for embedding.
type Supervisor struct {
	inner *supervisor.Supervisor
}

// Option configures a Supervisor.
type Option func(*options)

type options struct {
	ringCapacity int
}

// WithRingCapacity sets the per-process in-memory log retention.
func WithRingCapacity(n int) Option {
	return func(o *options) { o.ringCapacity = n }
}

// New returns an empty supervisor. Processes added to it are supervised
// until Shutdown.
func New(opts ...Option) *Supervisor {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	var regOpts []registry.Option
	if o.ringCapacity > 0 {
		regOpts = append(regOpts, registry.WithRingCapacity(o.ringCapacity))
	}
	reg := registry.New(regOpts...)
	return &Supervisor{inner: supervisor.New(reg)}
}

// Start registers cfg and spawns it, returning the assigned process id.
func (s *Supervisor) Start(cfg Config) (uint32, error) { return s.inner.StartNew(cfg) }

// Stop terminates a process without removing it. A zero signal means
// SIGTERM; a zero timeout uses the process's configured kill timeout.
func (s *Supervisor) Stop(id uint32, sig syscall.Signal, timeout time.Duration) error {
	return s.inner.Stop(id, sig, timeout)
}

// Restart stops the process if running and spawns it again.
func (s *Supervisor) Restart(id uint32) error { return s.inner.Restart(id) }

// Delete stops the process if needed and removes it from supervision.
func (s *Supervisor) Delete(id uint32) error { return s.inner.Delete(id) }

// List returns a snapshot of all supervised processes.
func (s *Supervisor) List() []Summary { return s.inner.List() }

// Logs returns the last n captured output lines of a process.
func (s *Supervisor) Logs(id uint32, n int) ([]LogEntry, error) { return s.inner.Logs(id, n) }

// Shutdown stops every process, giving each up to grace before SIGKILL.
func (s *Supervisor) Shutdown(grace time.Duration) { s.inner.Shutdown(grace) }

// HTTPHandler returns the REST/websocket control surface for this
// supervisor, mountable on any mux.
func (s *Supervisor) HTTPHandler() http.Handler { return server.NewRouter(s.inner) }

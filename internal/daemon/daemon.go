// Package daemon assembles the supervision core behind the control
// surfaces: it owns the registry, supervisor, state snapshot, history
// recorder, metrics sampler, and the unix socket listener, and runs their
// combined lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dave93/velos/internal/history"
	"github.com/Dave93/velos/internal/history/factory"
	"github.com/Dave93/velos/internal/metrics"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
	"github.com/Dave93/velos/internal/rpc"
	"github.com/Dave93/velos/internal/server"
	"github.com/Dave93/velos/internal/state"
	"github.com/Dave93/velos/internal/supervisor"
)

var ErrAlreadyRunning = errors.New("another daemon instance is already running")

const (
	DefaultShutdownGrace = 10 * time.Second
	stateFileName        = "state.db"
	pidFileName          = "velos.pid"
)

// Options configure a daemon instance.
type Options struct {
	SocketPath     string
	StateDir       string
	HTTPAddr       string        // empty disables the HTTP surface
	HistoryDSN     string        // empty disables the history sink
	LogDir         string        // default dir for per-process output files
	RingCapacity   int           // per-process log ring size
	SampleInterval time.Duration // resource sampling period
	ShutdownGrace  time.Duration // per-process stop grace at shutdown
}

// Daemon is one running supervision instance.
type Daemon struct {
	opts Options

	sup      *supervisor.Supervisor
	store    *state.Store
	recorder *history.Recorder
	sampler  *metrics.Sampler
	ln       net.Listener
	httpSrv  *http.Server

	// restored holds the snapshot adopted at init, for Resurrect.
	restored []registry.Saved

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func New(opts Options) *Daemon {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	return &Daemon{opts: opts, shutdownCh: make(chan struct{})}
}

// Init validates paths, takes the instance lock, loads the persisted
// snapshot, and starts listening on the control socket. A corrupt snapshot
// is fatal; no partial state is adopted.
func (d *Daemon) Init() error {
	if d.opts.SocketPath == "" || d.opts.StateDir == "" {
		return errors.New("socket path and state dir are required")
	}
	if err := os.MkdirAll(d.opts.StateDir, 0o750); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := acquirePidLock(filepath.Join(d.opts.StateDir, pidFileName)); err != nil {
		return err
	}

	st, err := state.Open(filepath.Join(d.opts.StateDir, stateFileName))
	if err != nil {
		d.releaseLock()
		return err
	}
	saved, err := st.Load(context.Background())
	if err != nil {
		_ = st.Close()
		d.releaseLock()
		return err
	}
	d.store = st
	d.restored = saved

	reg := registry.New(registry.WithRingCapacity(d.opts.RingCapacity))
	if err := reg.Restore(saved); err != nil {
		_ = st.Close()
		d.releaseLock()
		return err
	}
	if len(saved) > 0 {
		slog.Info("restored process table", "processes", len(saved))
	}

	logDir := d.opts.LogDir
	d.sup = supervisor.New(reg,
		supervisor.WithNotify(d.observe),
		supervisor.WithLogWriters(func(cfg *process.Config) (io.WriteCloser, io.WriteCloser) {
			lc := cfg.Log
			if lc.Dir == "" && lc.StdoutPath == "" && lc.StderrPath == "" {
				lc.Dir = logDir
			}
			return lc.Writers(cfg.Name)
		}))

	if d.opts.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(d.opts.HistoryDSN)
		if err != nil {
			_ = st.Close()
			d.releaseLock()
			return fmt.Errorf("failed to open history sink: %w", err)
		}
		d.recorder = history.NewRecorder(sink)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("metrics registration failed", "error", err)
	}
	d.sampler = metrics.NewSampler(d.sup, d.opts.SampleInterval)

	removeStaleSocket(d.opts.SocketPath)
	ln, err := net.Listen("unix", d.opts.SocketPath)
	if err != nil {
		_ = st.Close()
		d.releaseLock()
		return fmt.Errorf("failed to listen on %s: %w", d.opts.SocketPath, err)
	}
	d.ln = ln
	slog.Info("daemon listening", "socket", d.opts.SocketPath)
	return nil
}

// Run serves control connections until the context is cancelled or a
// Shutdown command arrives, then performs the orderly stop sequence.
func (d *Daemon) Run(ctx context.Context) error {
	d.sampler.Start()

	srv := rpc.NewServer(d.ln, d)
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(serveCtx) }()

	if d.opts.HTTPAddr != "" {
		router := server.NewRouter(d.sup)
		d.httpSrv = &http.Server{
			Addr:              d.opts.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("http listening", "addr", d.opts.HTTPAddr)
			if err := d.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-d.shutdownCh:
	case runErr = <-errCh:
	}

	d.stop(cancelServe, srv)
	return runErr
}

// TriggerShutdown requests an orderly stop; Run returns once it completes.
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

func (d *Daemon) stop(cancelServe context.CancelFunc, srv *rpc.Server) {
	slog.Info("daemon shutting down")
	if d.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	cancelServe()
	_ = srv.Close()

	if err := d.Save(context.Background()); err != nil {
		slog.Error("failed to save state during shutdown", "error", err)
	}
	d.sup.Shutdown(d.opts.ShutdownGrace)
	d.sampler.Stop()
	if d.recorder != nil {
		if err := d.recorder.Close(); err != nil {
			slog.Warn("failed to close history recorder", "error", err)
		}
	}
	_ = d.store.Close()
	_ = os.Remove(d.opts.SocketPath)
	d.releaseLock()
	slog.Info("daemon stopped")
}

// Save snapshots the current process table to the state store.
func (d *Daemon) Save(ctx context.Context) error {
	return d.store.Save(ctx, d.sup.Registry().Snapshot())
}

// Resurrect starts every restored process that was running when the last
// snapshot was taken and has autorestart enabled. It returns how many
// started.
func (d *Daemon) Resurrect() uint32 {
	var count uint32
	for _, sv := range d.restored {
		if sv.Status != process.Running || !sv.Config.AutoRestart {
			continue
		}
		e, err := d.sup.Get(sv.ID)
		if err != nil || e.Runtime.Status.Alive() {
			continue
		}
		if err := d.sup.Start(sv.ID); err != nil {
			slog.Warn("resurrect failed", "process", sv.Config.Name, "error", err)
			continue
		}
		count++
	}
	if count > 0 {
		slog.Info("resurrected processes", "count", count)
	}
	return count
}

// observe translates supervisor events into metrics and history records.
func (d *Daemon) observe(e supervisor.Event) {
	switch e.Type {
	case supervisor.EventStart:
		metrics.IncStart(e.Name)
		metrics.SetUp(e.Name, true)
		metrics.RecordStateTransition(e.Name, process.Starting.String(), process.Running.String())
	case supervisor.EventRestart:
		metrics.IncRestart(e.Name)
		metrics.SetUp(e.Name, true)
		metrics.RecordStateTransition(e.Name, process.Stopped.String(), process.Running.String())
	case supervisor.EventStop:
		metrics.IncStop(e.Name)
		metrics.SetUp(e.Name, false)
		metrics.RecordStateTransition(e.Name, process.Running.String(), process.Stopped.String())
	case supervisor.EventErrored:
		metrics.IncError(e.Name)
		metrics.SetUp(e.Name, false)
		metrics.RecordStateTransition(e.Name, process.Running.String(), process.Errored.String())
	}
	if d.recorder != nil {
		he := history.Event{
			Type:       history.EventType(e.Type),
			OccurredAt: e.At,
			ProcessID:  e.ID,
			Name:       e.Name,
			PID:        e.PID,
		}
		if e.Err != nil {
			he.Error = e.Err.Error()
		}
		d.recorder.Record(he)
	}
}

// Supervisor exposes the underlying supervision API for embedding.
func (d *Daemon) Supervisor() *supervisor.Supervisor { return d.sup }

func (d *Daemon) releaseLock() {
	_ = os.Remove(filepath.Join(d.opts.StateDir, pidFileName))
}

// removeStaleSocket clears a leftover socket file when no daemon answers
// on it.
func removeStaleSocket(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return
	}
	slog.Warn("removing stale control socket", "socket", path)
	_ = os.Remove(path)
}

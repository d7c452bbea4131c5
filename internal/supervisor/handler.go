package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/policy"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

type ctrlKind int

const (
	ctrlStart ctrlKind = iota
	ctrlStop
	ctrlRestart
	ctrlRespawn // delayed start posted by the restart timer
)

type ctrlMsg struct {
	kind    ctrlKind
	sig     syscall.Signal
	timeout time.Duration
	reply   chan error
}

// handler is the serialized executor for one process id. Its run loop is
// the only goroutine that mutates the entry's runtime state, so an
// operator stop can never interleave with a spontaneous exit.
type handler struct {
	sup  *Supervisor
	id   uint32
	ctrl chan ctrlMsg
	quit chan struct{}

	// Fields below are owned by the run loop.
	cmd          *exec.Cmd
	waitDone     chan struct{} // closed by the monitor after cmd.Wait returns
	exitErr      error         // written by the monitor before closing waitDone
	explicitStop bool
	startedAt    time.Time
	everStarted  bool
	restartTimer *time.Timer
	outW, errW   io.WriteCloser
}

func newHandler(s *Supervisor, id uint32) *handler {
	return &handler{
		sup:  s,
		id:   id,
		ctrl: make(chan ctrlMsg, 16),
		quit: make(chan struct{}),
	}
}

// send delivers msg to the run loop and waits for the outcome.
func (h *handler) send(msg ctrlMsg) error {
	msg.reply = make(chan error, 1)
	select {
	case h.ctrl <- msg:
	case <-h.quit:
		return fmt.Errorf("process %d: handler closed", h.id)
	}
	select {
	case err := <-msg.reply:
		return err
	case <-h.quit:
		return nil
	}
}

func (h *handler) close() { close(h.quit) }

func (h *handler) run() {
	for {
		// A closed waitDone must be consumed exactly once, then cleared.
		var waitCh <-chan struct{}
		if h.waitDone != nil {
			waitCh = h.waitDone
		}
		select {
		case <-h.sup.ctx.Done():
			return
		case <-h.quit:
			return
		case <-waitCh:
			h.waitDone = nil
			h.handleExit()
		case msg := <-h.ctrl:
			var err error
			switch msg.kind {
			case ctrlStart:
				err = h.doOperatorStart()
			case ctrlStop:
				err = h.doStop(msg.sig, msg.timeout)
			case ctrlRestart:
				err = h.doRestart()
			case ctrlRespawn:
				h.doRespawn()
			}
			if msg.reply != nil {
				msg.reply <- err
			}
		}
	}
}

func (h *handler) entry() (registry.Entry, bool) {
	e, err := h.sup.reg.Get(h.id)
	return e, err == nil
}

// --- start ---

// doOperatorStart is an explicit start request: treated as a fresh
// sequence, resetting the crash streak.
func (h *handler) doOperatorStart() error {
	e, ok := h.entry()
	if !ok {
		return registry.ErrNotFound
	}
	if e.Runtime.Status.Alive() {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, e.Config.Name)
	}
	h.cancelRestartTimer()
	h.explicitStop = false
	_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
		en.Runtime.Consecutive = 0
		en.Runtime.NextDelay = 0
	})
	return h.spawn(&e.Config, false)
}

// spawn builds and starts the OS process. A spawn failure is terminal for
// the sequence: the entry goes Errored and no restart is attempted.
func (h *handler) spawn(cfg *process.Config, isRespawn bool) error {
	_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
		en.Runtime.Status = process.Starting
	})
	cmd := process.BuildCommand(cfg, h.sup.lookup)
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		var errPipe io.ReadCloser
		errPipe, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
			if err == nil {
				h.attach(cfg, cmd, stdout, errPipe, isRespawn)
				return nil
			}
		}
	}
	_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
		en.Runtime.Status = process.Errored
		en.Runtime.PID = 0
	})
	h.sup.emit(Event{Type: EventErrored, ID: h.id, Name: cfg.Name, Err: err})
	slog.Error("spawn failed", "process", cfg.Name, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, cfg.Name, err)
}

// attach records the live run and launches its reader and monitor tasks.
func (h *handler) attach(cfg *process.Config, cmd *exec.Cmd, stdout, stderr io.ReadCloser, isRespawn bool) {
	now := time.Now()
	h.cmd = cmd
	h.startedAt = now
	h.waitDone = make(chan struct{})
	if h.sup.logWriters != nil {
		h.outW, h.errW = h.sup.logWriters(cfg)
	}
	_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
		en.Runtime.Status = process.Running
		en.Runtime.PID = cmd.Process.Pid
		en.Runtime.StartedAt = now
		if isRespawn || h.everStarted {
			en.Runtime.Restarts++
		}
	})

	ring, _ := h.sup.reg.Ring(h.id)
	var readers sync.WaitGroup
	readers.Add(2)
	go readStream(ring, logring.StreamStdout, stdout, h.outW, &readers)
	go readStream(ring, logring.StreamStderr, stderr, h.errW, &readers)

	done := h.waitDone
	go func() {
		// Pipes must be drained before Wait reclaims them.
		readers.Wait()
		h.exitErr = cmd.Wait()
		close(done)
	}()

	ev := EventStart
	if isRespawn || h.everStarted {
		ev = EventRestart
	}
	h.everStarted = true
	h.sup.emit(Event{Type: ev, ID: h.id, Name: cfg.Name, PID: cmd.Process.Pid})
	slog.Info("process started", "process", cfg.Name, "pid", cmd.Process.Pid)
}

// --- exit ---

// handleExit runs the restart policy for a reaped child. It executes on
// the run loop, so it is serialized with stop/restart for this id.
func (h *handler) handleExit() {
	h.closeWriters()
	e, ok := h.entry()
	if !ok {
		return
	}
	uptime := time.Since(h.startedAt)
	dec := policy.DecideExit(&e.Config, uptime, h.explicitStop, e.Runtime.Consecutive)
	h.explicitStop = false
	h.cmd = nil

	switch dec.Kind {
	case policy.Stop:
		_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
			en.Runtime.Status = process.Stopped
			en.Runtime.PID = 0
			en.Runtime.Consecutive = dec.Consecutive
			en.Runtime.NextDelay = 0
		})
		h.sup.emit(Event{Type: EventStop, ID: h.id, Name: e.Config.Name, Err: h.exitErr})
		slog.Info("process stopped", "process", e.Config.Name)
	case policy.GiveUp:
		_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
			en.Runtime.Status = process.Errored
			en.Runtime.PID = 0
			en.Runtime.Consecutive = dec.Consecutive
			en.Runtime.NextDelay = 0
		})
		h.sup.emit(Event{Type: EventErrored, ID: h.id, Name: e.Config.Name, Err: h.exitErr})
		slog.Warn("process errored, giving up",
			"process", e.Config.Name, "restarts", dec.Consecutive, "error", h.exitErr)
	case policy.Restart:
		_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
			en.Runtime.Status = process.Stopped
			en.Runtime.PID = 0
			en.Runtime.Consecutive = dec.Consecutive
			en.Runtime.NextDelay = dec.Delay
		})
		slog.Info("scheduling restart",
			"process", e.Config.Name, "attempt", dec.Consecutive, "delay", dec.Delay)
		h.scheduleRespawn(dec.Delay)
	}
}

func (h *handler) scheduleRespawn(delay time.Duration) {
	if delay <= 0 {
		h.doRespawn()
		return
	}
	ctx := h.sup.ctx
	h.restartTimer = time.AfterFunc(delay, func() {
		select {
		case h.ctrl <- ctrlMsg{kind: ctrlRespawn}:
		case <-ctx.Done():
		case <-h.quit:
		}
	})
}

// doRespawn issues the policy-scheduled start. A stop or delete that
// arrived while the timer ran cancels it, so a live respawn message after
// an explicit stop is simply dropped.
func (h *handler) doRespawn() {
	h.restartTimer = nil
	e, ok := h.entry()
	if !ok || e.Runtime.Status.Alive() || h.explicitStop {
		return
	}
	_ = h.spawn(&e.Config, true)
}

func (h *handler) cancelRestartTimer() {
	if h.restartTimer != nil {
		h.restartTimer.Stop()
		h.restartTimer = nil
	}
}

// --- stop / restart ---

func (h *handler) doStop(sig syscall.Signal, timeout time.Duration) error {
	h.cancelRestartTimer()
	e, ok := h.entry()
	if !ok {
		return registry.ErrNotFound
	}
	if !e.Runtime.Status.Alive() || h.cmd == nil {
		// Nothing live; a pending respawn was cancelled above.
		return nil
	}
	if sig == 0 {
		sig = syscall.SIGTERM
	}
	if timeout <= 0 {
		timeout = e.Config.KillTimeout
	}
	h.explicitStop = true
	pid := h.cmd.Process.Pid
	_ = process.SignalGroup(pid, sig)

	select {
	case <-h.waitDone:
	case <-time.After(timeout):
		slog.Warn("graceful stop timed out, escalating",
			"process", e.Config.Name, "pid", pid, "timeout", timeout)
		_ = process.Kill(pid)
		select {
		case <-h.waitDone:
		case <-time.After(2 * time.Second):
			// SIGKILL cannot be ignored; the exit will surface through
			// the run loop whenever the kernel reaps it.
			return nil
		}
	}
	h.waitDone = nil
	h.handleExit()
	return nil
}

// doRestart is an explicit restart: stop if alive, reset the streak, spawn
// fresh.
func (h *handler) doRestart() error {
	e, ok := h.entry()
	if !ok {
		return registry.ErrNotFound
	}
	if e.Runtime.Status.Alive() {
		if err := h.doStop(syscall.SIGTERM, e.Config.KillTimeout); err != nil {
			return err
		}
	}
	h.cancelRestartTimer()
	h.explicitStop = false
	_ = h.sup.reg.Update(h.id, func(en *registry.Entry) {
		en.Runtime.Consecutive = 0
		en.Runtime.NextDelay = 0
	})
	return h.spawn(&e.Config, true)
}

func (h *handler) closeWriters() {
	if h.outW != nil {
		_ = h.outW.Close()
		h.outW = nil
	}
	if h.errW != nil {
		_ = h.errW.Close()
		h.errW = nil
	}
}

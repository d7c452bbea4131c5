package supervisor

import (
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestSupervisor(t *testing.T, opts ...Option) *Supervisor {
	t.Helper()
	s := New(registry.New(), opts...)
	t.Cleanup(func() { s.Shutdown(2 * time.Second) })
	return s
}

func shellConfig(name, snippet string) process.Config {
	return process.Config{
		Name:        name,
		Script:      "/bin/sh",
		Args:        []string{"-c", snippet},
		AutoRestart: false,
		KillTimeout: 2 * time.Second,
	}
}

func TestStartAndStop(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.StartNew(shellConfig("sleeper", "sleep 60"))
	require.NoError(t, err)

	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Running, e.Runtime.Status)
	assert.Greater(t, e.Runtime.PID, 0)

	require.NoError(t, s.Stop(id, syscall.SIGTERM, time.Second))
	e, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Stopped, e.Runtime.Status)
	assert.Equal(t, 0, e.Runtime.PID)
}

func TestStartAlreadyRunning(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.StartNew(shellConfig("dup", "sleep 60"))
	require.NoError(t, err)

	err = s.Start(id)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestSpawnFailureMarksErrored(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	cfg := process.Config{
		Name:        "broken",
		Script:      "whatever",
		Interpreter: "/nonexistent/interpreter",
	}
	id, err := s.StartNew(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailed)

	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Errored, e.Runtime.Status)
}

func TestExitWithoutAutoRestartStaysErrored(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.StartNew(shellConfig("oneshot", "exit 3"))
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		e, _ := s.Get(id)
		return e.Runtime.Status == process.Errored
	})
}

func TestCrashLoopGivesUpAfterBudget(t *testing.T) {
	requireUnix(t)
	var mu sync.Mutex
	var events []EventType
	s := newTestSupervisor(t, WithNotify(func(e Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	}))

	cfg := shellConfig("crashy", "exit 1")
	cfg.AutoRestart = true
	cfg.MaxRestarts = 2
	cfg.RestartDelay = 20 * time.Millisecond
	cfg.MinUptime = 10 * time.Second

	id, err := s.StartNew(cfg)
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		e, _ := s.Get(id)
		return e.Runtime.Status == process.Errored
	})

	e, err := s.Get(id)
	require.NoError(t, err)
	// Two respawns were attempted before the third exit blew the budget.
	assert.Equal(t, uint32(2), e.Runtime.Restarts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventErrored, events[len(events)-1])
}

func TestExplicitStopSuppressesRestart(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	cfg := shellConfig("svc", "sleep 60")
	cfg.AutoRestart = true
	id, err := s.StartNew(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Stop(id, syscall.SIGTERM, time.Second))
	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Stopped, e.Runtime.Status)

	// No respawn sneaks in afterwards.
	time.Sleep(150 * time.Millisecond)
	e, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Stopped, e.Runtime.Status)
}

func TestStopEscalatesToKill(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	// A busy loop with TERM ignored: only SIGKILL can take it down. The
	// echo confirms the trap is installed before the stop is issued.
	id, err := s.StartNew(shellConfig("stubborn", `trap "" TERM; echo ready; while :; do :; done`))
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		lines, lerr := s.Logs(id, 1)
		return lerr == nil && len(lines) == 1 && lines[0].Message == "ready"
	})

	start := time.Now()
	require.NoError(t, s.Stop(id, syscall.SIGTERM, 300*time.Millisecond))
	elapsed := time.Since(start)
	// The graceful window must run out before SIGKILL lands.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)

	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Stopped, e.Runtime.Status)
}

func TestRestartResetsStreak(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.StartNew(shellConfig("svc", "sleep 60"))
	require.NoError(t, err)
	first, _ := s.Get(id)

	require.NoError(t, s.Restart(id))
	e, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, process.Running, e.Runtime.Status)
	assert.NotEqual(t, first.Runtime.PID, e.Runtime.PID)
	assert.Equal(t, uint32(1), e.Runtime.Restarts)
	assert.Equal(t, 0, e.Runtime.Consecutive)
}

func TestOutputCapturedIntoRing(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.StartNew(shellConfig("talker", `echo hello; echo "ERROR: boom" 1>&2; sleep 60`))
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool {
		lines, err := s.Logs(id, 10)
		return err == nil && len(lines) >= 2
	})

	lines, err := s.Logs(id, 10)
	require.NoError(t, err)

	byMsg := make(map[string]logring.Entry, len(lines))
	for _, l := range lines {
		byMsg[l.Message] = l
	}
	require.Contains(t, byMsg, "hello")
	assert.Equal(t, logring.StreamStdout, byMsg["hello"].Stream)
	assert.Equal(t, logring.LevelInfo, byMsg["hello"].Level)

	require.Contains(t, byMsg, "ERROR: boom")
	assert.Equal(t, logring.StreamStderr, byMsg["ERROR: boom"].Stream)
	assert.Equal(t, logring.LevelError, byMsg["ERROR: boom"].Level)
}

func TestDeleteRunningProcess(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.StartNew(shellConfig("goner", "sleep 60"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))
	_, err = s.Get(id)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestFailedDeleteKeepsHandlerTracked(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	id, err := s.reg.Create(shellConfig("sticky", "sleep 60"))
	require.NoError(t, err)
	h, err := s.ensureHandler(id)
	require.NoError(t, err)

	// Simulate a child the stop path could not reap: the entry reads as
	// alive while the handler holds no command to signal.
	require.NoError(t, s.reg.Update(id, func(e *registry.Entry) {
		e.Runtime.Status = process.Running
		e.Runtime.PID = 1 << 30
	}))

	err = s.Delete(id)
	require.ErrorIs(t, err, registry.ErrStillRunning)
	assert.Same(t, h, s.getHandler(id), "failed delete must not orphan the handler")

	// Once the exit lands the same delete succeeds.
	require.NoError(t, s.reg.Update(id, func(e *registry.Entry) {
		e.Runtime.Status = process.Stopped
		e.Runtime.PID = 0
	}))
	require.NoError(t, s.Delete(id))
	assert.Nil(t, s.getHandler(id))
	_, err = s.Get(id)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestShutdownStopsEverything(t *testing.T) {
	requireUnix(t)
	s := New(registry.New())

	a, err := s.StartNew(shellConfig("a", "sleep 60"))
	require.NoError(t, err)
	b, err := s.StartNew(shellConfig("b", "sleep 60"))
	require.NoError(t, err)

	s.Shutdown(time.Second)

	for _, id := range []uint32{a, b} {
		e, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, process.Stopped, e.Runtime.Status)
	}
}

package daemon

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/rpc"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires unix sockets")
	}
}

// shortTempDir avoids sockaddr_un path length limits that t.TempDir can
// exceed on some systems.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.Less(t, len(dir), 80, "temp dir too long for a unix socket path")
	return dir
}

type testDaemon struct {
	d      *Daemon
	opts   Options
	runErr chan error
}

func startTestDaemon(t *testing.T, stateDir string) *testDaemon {
	t.Helper()
	opts := Options{
		SocketPath:    filepath.Join(stateDir, "velos.sock"),
		StateDir:      stateDir,
		ShutdownGrace: 2 * time.Second,
	}
	d := New(opts)
	require.NoError(t, d.Init())

	td := &testDaemon{d: d, opts: opts, runErr: make(chan error, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { td.runErr <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		c, err := rpc.Dial(opts.SocketPath, time.Second)
		if err != nil {
			return false
		}
		defer func() { _ = c.Close() }()
		return c.Ping() == nil
	}, 3*time.Second, 50*time.Millisecond)
	return td
}

func (td *testDaemon) shutdown(t *testing.T) {
	t.Helper()
	td.d.TriggerShutdown()
	select {
	case err := <-td.runErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func dial(t *testing.T, td *testDaemon) *rpc.Client {
	t.Helper()
	c, err := rpc.Dial(td.opts.SocketPath, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func shellSleep(name string) process.Config {
	return process.Config{
		Name:        name,
		Script:      "/bin/sh",
		Args:        []string{"-c", "sleep 60"},
		KillTimeout: 2 * time.Second,
		AutoRestart: true,
	}
}

func TestInitRequiresPaths(t *testing.T) {
	require.Error(t, New(Options{}).Init())
	require.Error(t, New(Options{SocketPath: "/tmp/x.sock"}).Init())
}

func TestSecondInstanceIsRejected(t *testing.T) {
	requireUnix(t)
	dir := shortTempDir(t)
	td := startTestDaemon(t, dir)
	defer td.shutdown(t)

	second := New(Options{
		SocketPath: filepath.Join(dir, "other.sock"),
		StateDir:   dir,
	})
	err := second.Init()
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestLifecycleOverSocket(t *testing.T) {
	requireUnix(t)
	td := startTestDaemon(t, shortTempDir(t))
	defer td.shutdown(t)
	c := dial(t, td)

	id, err := c.Start(process.Config{
		Name:        "web",
		Script:      "/bin/sh",
		Args:        []string{"-c", "sleep 60"},
		KillTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	rows, err := c.List()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "web", rows[0].Name)
	require.Equal(t, "running", rows[0].StatusString())
	require.NotZero(t, rows[0].PID)

	detail, err := c.Info(id)
	require.NoError(t, err)
	require.Equal(t, "/bin/sh", detail.Script)

	resolved, err := c.ResolveID("web")
	require.NoError(t, err)
	require.Equal(t, id, resolved)

	require.NoError(t, c.Stop(id, 0, 0))
	rows, err = c.List()
	require.NoError(t, err)
	require.Equal(t, "stopped", rows[0].StatusString())

	require.NoError(t, c.Delete(id))
	rows, err = c.List()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestLogsOverSocket(t *testing.T) {
	requireUnix(t)
	td := startTestDaemon(t, shortTempDir(t))
	defer td.shutdown(t)
	c := dial(t, td)

	id, err := c.Start(process.Config{
		Name:        "chatty",
		Script:      "/bin/sh",
		Args:        []string{"-c", "echo hello; echo 'ERROR: boom' >&2; sleep 60"},
		KillTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entries, lerr := c.Logs(id, 10)
		return lerr == nil && len(entries) >= 2
	}, 3*time.Second, 50*time.Millisecond)

	entries, err := c.Logs(id, 10)
	require.NoError(t, err)
	messages := make(map[string]rpc.LogEntry, len(entries))
	for _, e := range entries {
		messages[e.Message] = e
	}
	require.Contains(t, messages, "hello")
	require.Contains(t, messages, "ERROR: boom")
}

func TestSaveAndResurrectAcrossRestart(t *testing.T) {
	requireUnix(t)
	dir := shortTempDir(t)

	td := startTestDaemon(t, dir)
	c := dial(t, td)
	id, err := c.Start(shellSleep("persistent"))
	require.NoError(t, err)
	require.NoError(t, c.Save())
	td.shutdown(t)

	// new daemon instance over the same state dir
	td2 := startTestDaemon(t, dir)
	defer td2.shutdown(t)
	c2 := dial(t, td2)

	rows, err := c2.List()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "persistent", rows[0].Name)
	require.Equal(t, id, rows[0].ID, "ids survive restarts")
	require.Equal(t, "stopped", rows[0].StatusString(), "restored entries start stopped")

	n, err := c2.Resurrect()
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)

	require.Eventually(t, func() bool {
		rows, lerr := c2.List()
		return lerr == nil && len(rows) == 1 && rows[0].StatusString() == "running"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestShutdownCommandStopsDaemon(t *testing.T) {
	requireUnix(t)
	td := startTestDaemon(t, shortTempDir(t))
	c := dial(t, td)

	_, err := c.Start(shellSleep("victim"))
	require.NoError(t, err)
	require.NoError(t, c.Shutdown())

	select {
	case err := <-td.runErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not exit after shutdown command")
	}
}

func TestUnknownProcessErrorsOverSocket(t *testing.T) {
	requireUnix(t)
	td := startTestDaemon(t, shortTempDir(t))
	defer td.shutdown(t)
	c := dial(t, td)

	err := c.Restart(9999)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")

	_, err = c.ResolveID("ghost")
	require.Error(t, err)
}

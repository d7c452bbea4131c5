package rpc

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, req Request) Response {
	switch req.Command {
	case CmdPing:
		return OK(req, []byte("pong"))
	case CmdProcessDelete:
		return Fail(req, errors.New("process not found"))
	default:
		return OK(req, req.Payload)
	}
}

func startTestServer(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires unix sockets")
	}
	sock := filepath.Join(t.TempDir(), "velos.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	srv := NewServer(ln, echoHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
		<-done
	})
	return sock
}

func TestClientServerExchange(t *testing.T) {
	sock := startTestServer(t)

	c, err := Dial(sock, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Ping())

	// Request ids advance per call and the payload echoes back.
	payload, err := c.Call(CmdLogRead, []byte{9, 8, 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, payload)
}

func TestErrorResponseSurfacesMessage(t *testing.T) {
	sock := startTestServer(t)

	c, err := Dial(sock, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	err = c.Delete(5)
	require.Error(t, err)
	assert.Equal(t, "process not found", err.Error())

	// The connection survives an error response.
	require.NoError(t, c.Ping())
}

func TestDialMissingSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires unix sockets")
	}
	_, err := Dial(filepath.Join(t.TempDir(), "nope.sock"), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

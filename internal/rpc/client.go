package rpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

// ErrDaemonNotRunning reports a failed socket dial.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// Client speaks the binary protocol to a daemon socket. It is safe for
// concurrent use; calls are serialized over the single connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID uint32
}

// Dial connects to the daemon's unix socket.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	return &Client{conn: conn, nextID: 1}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Call performs one request/response exchange.
func (c *Client) Call(cmd Command, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	if err := WriteRequest(c.conn, Request{ID: id, Command: cmd, Payload: payload}); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	resp, err := ReadResponse(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s reply: %w", cmd, err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("%s reply id mismatch: sent %d, got %d", cmd, id, resp.ID)
	}
	if resp.Status != StatusOK {
		return nil, errors.New(resp.ErrorMessage())
	}
	return resp.Payload, nil
}

// Start registers and starts a process, returning its new id.
func (c *Client) Start(cfg process.Config) (uint32, error) {
	payload, err := c.Call(CmdProcessStart, StartPayloadFromConfig(cfg).Encode())
	if err != nil {
		return 0, err
	}
	return DecodeID(payload)
}

// Stop gracefully stops a process. signal 0 means SIGTERM; timeout 0 means
// the process's configured kill timeout.
func (c *Client) Stop(id uint32, signal uint8, timeout time.Duration) error {
	_, err := c.Call(CmdProcessStop, StopPayload{
		ProcessID: id,
		Signal:    signal,
		TimeoutMs: uint32(timeout / time.Millisecond),
	}.Encode())
	return err
}

// Restart stops (if needed) and starts a process fresh.
func (c *Client) Restart(id uint32) error {
	_, err := c.Call(CmdProcessRestart, EncodeID(id))
	return err
}

// Delete removes a process from the daemon.
func (c *Client) Delete(id uint32) error {
	_, err := c.Call(CmdProcessDelete, EncodeID(id))
	return err
}

// List returns all registered processes in creation order.
func (c *Client) List() ([]ProcessRow, error) {
	payload, err := c.Call(CmdProcessList, nil)
	if err != nil {
		return nil, err
	}
	return DecodeProcessList(payload)
}

// Info returns the full detail view for one process.
func (c *Client) Info(id uint32) (ProcessDetail, error) {
	payload, err := c.Call(CmdProcessInfo, EncodeID(id))
	if err != nil {
		return ProcessDetail{}, err
	}
	return DecodeProcessDetail(payload)
}

// Logs returns up to lines recent log entries for a process.
func (c *Client) Logs(id uint32, lines uint32) ([]LogEntry, error) {
	payload, err := c.Call(CmdLogRead, LogReadPayload{ProcessID: id, Lines: lines}.Encode())
	if err != nil {
		return nil, err
	}
	return DecodeLogEntries(payload)
}

// Save asks the daemon to snapshot its process table to disk.
func (c *Client) Save() error {
	_, err := c.Call(CmdStateSave, nil)
	return err
}

// Resurrect respawns restored processes that were running when the last
// snapshot was taken; it returns how many were started.
func (c *Client) Resurrect() (uint32, error) {
	payload, err := c.Call(CmdStateLoad, nil)
	if err != nil {
		return 0, err
	}
	return DecodeCount(payload)
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	_, err := c.Call(CmdPing, nil)
	return err
}

// Shutdown asks the daemon to terminate gracefully. The daemon may tear
// the connection down before the reply flushes, so a dropped connection
// after a successful send counts as success.
func (c *Client) Shutdown() error {
	_, err := c.Call(CmdShutdown, nil)
	if err != nil && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET)) {
		return nil
	}
	return err
}

// ResolveID turns a name-or-id argument into a process id using a list
// round trip when needed.
func (c *Client) ResolveID(arg string) (uint32, error) {
	if id, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return uint32(id), nil
	}
	rows, err := c.List()
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if row.Name == arg {
			return row.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", registry.ErrNotFound, arg)
}

package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Handler executes one decoded control request. Implementations must not
// panic; any error belongs in the returned response.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// Server accepts unix socket connections and dispatches framed requests to
// the handler. Each connection gets its own goroutine; requests on one
// connection are served in order.
type Server struct {
	ln      net.Listener
	handler Handler

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(ln net.Listener, handler Handler) *Server {
	return &Server{
		ln:      ln,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve accepts until the context is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Close stops accepting, closes live connections, and waits for their
// goroutines.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer func() { _ = conn.Close() }()

	for {
		req, err := ReadRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				slog.Debug("control connection read failed", "error", err)
			}
			return
		}
		resp := s.handler.Handle(ctx, req)
		if err := WriteResponse(conn, resp); err != nil {
			slog.Debug("control connection write failed", "error", err)
			return
		}
	}
}

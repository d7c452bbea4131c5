package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleLogStream upgrades the connection and pushes new ring entries as
// they arrive. The initial backlog is the last 50 lines; after that the
// ring is polled with a cursor so slow consumers only miss evicted lines.
func (r *Router) handleLogStream(c *gin.Context) {
	e, ok := r.resolve(c)
	if !ok {
		return
	}
	ring := e.Ring
	if ring == nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: "log ring unavailable"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = ws.Close() }()

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice close frames and connection drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, rerr := ws.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	backlog, seq := ring.Tail(50)
	for _, entry := range backlog {
		if writeEntry(ws, entry) != nil {
			return
		}
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			entries, next := ring.Since(seq)
			seq = next
			for _, entry := range entries {
				if writeEntry(ws, entry) != nil {
					return
				}
			}
		}
	}
}

func writeEntry(ws *websocket.Conn, entry any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return ws.WriteJSON(entry)
}

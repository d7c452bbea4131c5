// Package server exposes the daemon's HTTP control surface. It mirrors the
// socket protocol's operations as a JSON API and adds the websocket log
// stream and the Prometheus scrape endpoint.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dave93/velos/internal/metrics"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
	"github.com/Dave93/velos/internal/rpc"
	"github.com/Dave93/velos/internal/supervisor"
)

// Router provides embeddable HTTP handlers over a supervisor.
// Endpoints:
//
//	POST   /processes               body: process config JSON
//	GET    /processes               list
//	GET    /processes/:id           detail (:id is a numeric id or a name)
//	POST   /processes/:id/stop      query: signal, timeout
//	POST   /processes/:id/restart
//	DELETE /processes/:id
//	GET    /processes/:id/logs      query: lines
//	GET    /processes/:id/logs/stream   websocket
//	GET    /metrics                 prometheus scrape
type Router struct {
	sup *supervisor.Supervisor
}

// NewRouter returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func NewRouter(sup *supervisor.Supervisor) http.Handler {
	r := &Router{sup: sup}
	g := gin.New()
	g.Use(gin.Recovery())

	g.POST("/processes", r.handleStart)
	g.GET("/processes", r.handleList)
	g.GET("/processes/:id", r.handleInfo)
	g.POST("/processes/:id/stop", r.handleStop)
	g.POST("/processes/:id/restart", r.handleRestart)
	g.DELETE("/processes/:id", r.handleDelete)
	g.GET("/processes/:id/logs", r.handleLogs)
	g.GET("/processes/:id/logs/stream", r.handleLogStream)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startResp struct {
	ID uint32 `json:"id"`
}

// startRequest wraps the config so an omitted autorestart or max_restarts
// key resolves to the default (true, 15) while explicit false and 0 pass
// through. The pointer fields shadow the embedded ones during decoding.
type startRequest struct {
	process.Config
	AutoRestart *bool `json:"autorestart"`
	MaxRestarts *int  `json:"max_restarts"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	cfg := req.Config
	cfg.AutoRestart = req.AutoRestart == nil || *req.AutoRestart
	cfg.MaxRestarts = process.DefaultMaxRestarts
	if req.MaxRestarts != nil {
		cfg.MaxRestarts = *req.MaxRestarts
	}
	if !isSafeName(cfg.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	for field, p := range map[string]string{
		"cwd":             cfg.Cwd,
		"log.dir":         cfg.Log.Dir,
		"log.stdout_path": cfg.Log.StdoutPath,
		"log.stderr_path": cfg.Log.StderrPath,
	} {
		if !isSafeAbsPath(p) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid " + field + ": must be absolute path without traversal"})
			return
		}
	}
	id, err := r.sup.StartNew(cfg)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusCreated, startResp{ID: id})
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.List())
}

func (r *Router) handleInfo(c *gin.Context) {
	e, ok := r.resolve(c)
	if !ok {
		return
	}
	detail, err := rpc.DecodeProcessDetail(rpc.EncodeProcessDetail(e))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, detail)
}

func (r *Router) handleStop(c *gin.Context) {
	e, ok := r.resolve(c)
	if !ok {
		return
	}
	var signal uint8
	if s := c.Query("signal"); s != "" {
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid signal"})
			return
		}
		signal = uint8(n)
	}
	var timeout time.Duration
	if s := c.Query("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid timeout"})
			return
		}
		timeout = d
	}
	if err := r.sup.Stop(e.ID, process.SignalFromCode(signal), timeout); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	e, ok := r.resolve(c)
	if !ok {
		return
	}
	if err := r.sup.Restart(e.ID); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDelete(c *gin.Context) {
	e, ok := r.resolve(c)
	if !ok {
		return
	}
	if err := r.sup.Delete(e.ID); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	metrics.Forget(e.Config.Name)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogs(c *gin.Context) {
	e, ok := r.resolve(c)
	if !ok {
		return
	}
	lines := 100
	if s := c.Query("lines"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid lines"})
			return
		}
		lines = n
	}
	entries, err := r.sup.Logs(e.ID, lines)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, entries)
}

// resolve maps the :id path segment (numeric id or process name) to an
// entry snapshot, writing the error response itself on failure.
func (r *Router) resolve(c *gin.Context) (registry.Entry, bool) {
	arg := c.Param("id")
	var (
		e   registry.Entry
		err error
	)
	if id, perr := strconv.ParseUint(arg, 10, 32); perr == nil {
		e, err = r.sup.Get(uint32(id))
	} else {
		e, err = r.sup.Registry().GetByName(arg)
	}
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return registry.Entry{}, false
	}
	return e, true
}

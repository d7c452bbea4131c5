package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dave93/velos/internal/metrics"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/rpc"
)

// Handle dispatches one control request. Per-process failures travel back
// as error responses; they never take down the daemon loop.
func (d *Daemon) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	switch req.Command {
	case rpc.CmdProcessStart:
		return d.handleStart(req)
	case rpc.CmdProcessStop:
		return d.handleStop(req)
	case rpc.CmdProcessRestart:
		return d.handleRestart(req)
	case rpc.CmdProcessDelete:
		return d.handleDelete(req)
	case rpc.CmdProcessList:
		return rpc.OK(req, rpc.EncodeProcessList(d.sup.List()))
	case rpc.CmdProcessInfo:
		return d.handleInfo(req)
	case rpc.CmdLogRead:
		return d.handleLogRead(req)
	case rpc.CmdStateSave:
		if err := d.Save(ctx); err != nil {
			return rpc.Fail(req, err)
		}
		return rpc.OK(req, nil)
	case rpc.CmdStateLoad:
		return rpc.OK(req, rpc.EncodeCount(d.Resurrect()))
	case rpc.CmdPing:
		return rpc.OK(req, []byte("pong"))
	case rpc.CmdShutdown:
		slog.Info("shutdown requested over control socket")
		d.TriggerShutdown()
		return rpc.OK(req, nil)
	default:
		return rpc.Fail(req, fmt.Errorf("unknown command: %s", req.Command))
	}
}

func (d *Daemon) handleStart(req rpc.Request) rpc.Response {
	p, err := rpc.DecodeStartPayload(req.Payload)
	if err != nil {
		return rpc.Fail(req, err)
	}
	id, err := d.sup.StartNew(p.Config())
	if err != nil {
		return rpc.Fail(req, err)
	}
	return rpc.OK(req, rpc.EncodeID(id))
}

func (d *Daemon) handleStop(req rpc.Request) rpc.Response {
	p, err := rpc.DecodeStopPayload(req.Payload)
	if err != nil {
		return rpc.Fail(req, err)
	}
	err = d.sup.Stop(p.ProcessID,
		process.SignalFromCode(p.Signal),
		time.Duration(p.TimeoutMs)*time.Millisecond)
	if err != nil {
		return rpc.Fail(req, err)
	}
	return rpc.OK(req, nil)
}

func (d *Daemon) handleRestart(req rpc.Request) rpc.Response {
	id, err := rpc.DecodeID(req.Payload)
	if err != nil {
		return rpc.Fail(req, err)
	}
	if err := d.sup.Restart(id); err != nil {
		return rpc.Fail(req, err)
	}
	return rpc.OK(req, nil)
}

func (d *Daemon) handleDelete(req rpc.Request) rpc.Response {
	id, err := rpc.DecodeID(req.Payload)
	if err != nil {
		return rpc.Fail(req, err)
	}
	e, err := d.sup.Get(id)
	if err != nil {
		return rpc.Fail(req, err)
	}
	if err := d.sup.Delete(id); err != nil {
		return rpc.Fail(req, err)
	}
	metrics.Forget(e.Config.Name)
	return rpc.OK(req, nil)
}

func (d *Daemon) handleInfo(req rpc.Request) rpc.Response {
	id, err := rpc.DecodeID(req.Payload)
	if err != nil {
		return rpc.Fail(req, err)
	}
	e, err := d.sup.Get(id)
	if err != nil {
		return rpc.Fail(req, err)
	}
	return rpc.OK(req, rpc.EncodeProcessDetail(e))
}

func (d *Daemon) handleLogRead(req rpc.Request) rpc.Response {
	p, err := rpc.DecodeLogReadPayload(req.Payload)
	if err != nil {
		return rpc.Fail(req, err)
	}
	entries, err := d.sup.Logs(p.ProcessID, int(p.Lines))
	if err != nil {
		return rpc.Fail(req, err)
	}
	return rpc.OK(req, rpc.EncodeLogEntries(entries))
}

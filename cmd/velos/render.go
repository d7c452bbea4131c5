package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Dave93/velos/internal/logring"
	"github.com/Dave93/velos/internal/rpc"
)

func renderList(w io.Writer, rows []rpc.ProcessRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPID\tUPTIME\tRESTARTS\tMEMORY")
	for _, r := range rows {
		pid := "-"
		if r.PID != 0 {
			pid = fmt.Sprintf("%d", r.PID)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Name, r.StatusString(), pid,
			formatUptime(r.UptimeMs), r.Restarts, formatBytes(r.Memory))
	}
	_ = tw.Flush()
}

func renderDetail(w io.Writer, d rpc.ProcessDetail) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	put := func(k string, v any) { _, _ = fmt.Fprintf(tw, "%s\t%v\n", k, v) }
	put("id", d.ID)
	put("name", d.Name)
	put("status", d.StatusString())
	if d.PID != 0 {
		put("pid", d.PID)
	}
	put("script", d.Script)
	if d.Interpreter != "" {
		put("interpreter", d.Interpreter)
	}
	if d.Cwd != "" {
		put("cwd", d.Cwd)
	}
	put("uptime", formatUptime(d.UptimeMs))
	put("restarts", d.Restarts)
	put("consecutive crashes", d.Consecutive)
	put("memory", formatBytes(d.Memory))
	put("autorestart", d.AutoRestart)
	put("max restarts", d.MaxRestarts)
	put("min uptime", time.Duration(d.MinUptimeMs)*time.Millisecond)
	put("restart delay", time.Duration(d.RestartDelayMs)*time.Millisecond)
	put("exp backoff", d.ExpBackoff)
	put("kill timeout", time.Duration(d.KillTimeoutMs)*time.Millisecond)
	if d.MaxMemory != 0 {
		put("max memory", formatBytes(d.MaxMemory))
	}
	_ = tw.Flush()
}

func renderLogs(w io.Writer, entries []rpc.LogEntry) {
	for _, e := range entries {
		ts := time.UnixMilli(int64(e.TimestampMs)).Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(w, "%s [%s] %s\n", ts, logring.Level(e.Level), e.Message)
	}
}

func formatUptime(ms uint64) string {
	if ms == 0 {
		return "-"
	}
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

func formatBytes(n uint64) string {
	switch {
	case n == 0:
		return "-"
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

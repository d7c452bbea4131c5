package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dave93/velos/internal/daemon"
	"github.com/Dave93/velos/internal/logger"
)

// DaemonFlags holds the daemon command's flags.
type DaemonFlags struct {
	StateDir      string
	HTTPAddr      string
	HistoryDSN    string
	LogDir        string
	RingCapacity  int
	ShutdownGrace time.Duration
	LogLevel      string

	Daemonize bool
	PidFile   string
	LogFile   string
}

func newDaemonCmd(global *GlobalFlags) *cobra.Command {
	flags := &DaemonFlags{}
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the supervisor daemon",
		Long:  "Runs the daemon in the foreground, listening on the control socket. Use --daemonize to detach into the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Daemonize {
				return daemonize(flags.PidFile, flags.LogFile)
			}
			return runDaemon(global, flags)
		},
	}
	cmd.Flags().StringVar(&flags.StateDir, "state-dir", velosDir(), "directory for state snapshot and pid lock")
	cmd.Flags().StringVar(&flags.HTTPAddr, "http", "", "HTTP listen address (empty disables the HTTP API)")
	cmd.Flags().StringVar(&flags.HistoryDSN, "history-dsn", "", "history sink DSN (sqlite://, postgres://, clickhouse://)")
	cmd.Flags().StringVar(&flags.LogDir, "log-dir", "", "default directory for per-process output files")
	cmd.Flags().IntVar(&flags.RingCapacity, "ring-capacity", 0, "per-process in-memory log lines (0 = default)")
	cmd.Flags().DurationVar(&flags.ShutdownGrace, "shutdown-grace", daemon.DefaultShutdownGrace, "per-process stop grace at shutdown")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "info", "daemon log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "detach and run in the background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write the background daemon's pid to this file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect the background daemon's output to this file")
	return cmd
}

func runDaemon(global *GlobalFlags, flags *DaemonFlags) error {
	logger.Setup(flags.LogLevel, isTerminal(os.Stderr))

	logDir := flags.LogDir
	if logDir == "" {
		logDir = filepath.Join(flags.StateDir, "logs")
	}
	d := daemon.New(daemon.Options{
		SocketPath:    global.Socket,
		StateDir:      flags.StateDir,
		HTTPAddr:      flags.HTTPAddr,
		HistoryDSN:    flags.HistoryDSN,
		LogDir:        logDir,
		RingCapacity:  flags.RingCapacity,
		ShutdownGrace: flags.ShutdownGrace,
	})
	if err := d.Init(); err != nil {
		return fmt.Errorf("daemon init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

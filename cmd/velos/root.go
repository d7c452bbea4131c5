package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dave93/velos/internal/rpc"
)

const version = "0.1.0"

// GlobalFlags holds persistent flags shared by every command that talks to
// the daemon.
type GlobalFlags struct {
	Socket  string
	Timeout time.Duration
	JSON    bool
}

// velosDir returns the per-user state directory, ~/.velos, falling back to
// the system temp dir when HOME is unset.
func velosDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".velos")
}

func defaultSocketPath() string {
	return filepath.Join(velosDir(), "velos.sock")
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}

	root := &cobra.Command{
		Use:           "velos",
		Short:         "velos is a lightweight process manager",
		Long:          "velos supervises long-running processes: it starts them, restarts them when they crash, captures their output, and persists the process table across daemon restarts.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&global.Socket, "socket", defaultSocketPath(), "daemon control socket path")
	root.PersistentFlags().DurationVar(&global.Timeout, "timeout", 5*time.Second, "socket dial timeout")
	root.PersistentFlags().BoolVar(&global.JSON, "json", false, "output machine-readable JSON")

	root.AddCommand(
		newDaemonCmd(global),
		newStartCmd(global),
		newStopCmd(global),
		newRestartCmd(global),
		newDeleteCmd(global),
		newListCmd(global),
		newInfoCmd(global),
		newLogsCmd(global),
		newSaveCmd(global),
		newResurrectCmd(global),
		newPingCmd(global),
		newShutdownCmd(global),
	)
	return root
}

// withClient dials the daemon, runs fn, and closes the connection.
func withClient(global *GlobalFlags, fn func(*rpc.Client) error) error {
	c, err := rpc.Dial(global.Socket, global.Timeout)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(c)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dave93/velos/internal/config"
	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/rpc"
)

// StartFlags holds the start command's flags.
type StartFlags struct {
	Name         string
	Cwd          string
	Interpreter  string
	Env          []string
	KillTimeout  time.Duration
	AutoRestart  bool
	MaxRestarts  int
	MinUptime    time.Duration
	RestartDelay time.Duration
	ExpBackoff   bool
	MaxMemory    string
	ConfigPath   string
}

func newStartCmd(global *GlobalFlags) *cobra.Command {
	flags := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start [script] [-- args...]",
		Short: "Start a process",
		Long:  "Starts a process under supervision. With --config, registers and starts every app declared in the TOML file instead.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.ConfigPath != "" {
				return startFromConfig(global, flags.ConfigPath)
			}
			if len(args) == 0 {
				return fmt.Errorf("script argument or --config is required")
			}
			return startOne(global, flags, args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&flags.Name, "name", "n", "", "process name (defaults to script basename)")
	cmd.Flags().StringVar(&flags.Cwd, "cwd", "", "working directory")
	cmd.Flags().StringVar(&flags.Interpreter, "interpreter", "", "interpreter binary (default: detect from extension)")
	cmd.Flags().StringArrayVar(&flags.Env, "env", nil, "extra KEY=VALUE environment entries (repeatable)")
	cmd.Flags().DurationVar(&flags.KillTimeout, "kill-timeout", 0, "grace between SIGTERM and SIGKILL")
	cmd.Flags().BoolVar(&flags.AutoRestart, "autorestart", false, "restart the process when it exits")
	cmd.Flags().IntVar(&flags.MaxRestarts, "max-restarts", process.DefaultMaxRestarts, "crash-loop budget (-1 = unlimited, 0 = never respawn)")
	cmd.Flags().DurationVar(&flags.MinUptime, "min-uptime", 0, "uptime required to reset the crash streak")
	cmd.Flags().DurationVar(&flags.RestartDelay, "restart-delay", 0, "delay before a respawn")
	cmd.Flags().BoolVar(&flags.ExpBackoff, "exp-backoff", false, "double the restart delay each consecutive crash")
	cmd.Flags().StringVar(&flags.MaxMemory, "max-memory", "", "restart when RSS exceeds this size (e.g. 150M)")
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "start all apps from a velos.toml file")
	return cmd
}

func startOne(global *GlobalFlags, flags *StartFlags, script string, args []string) error {
	name := flags.Name
	if name == "" {
		base := filepath.Base(script)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	maxMem, err := config.ParseSize(flags.MaxMemory)
	if err != nil {
		return err
	}
	cfg := process.Config{
		Name:         name,
		Script:       script,
		Cwd:          flags.Cwd,
		Interpreter:  flags.Interpreter,
		Args:         args,
		Env:          flags.Env,
		KillTimeout:  flags.KillTimeout,
		AutoRestart:  flags.AutoRestart,
		MaxRestarts:  flags.MaxRestarts,
		MinUptime:    flags.MinUptime,
		RestartDelay: flags.RestartDelay,
		ExpBackoff:   flags.ExpBackoff,
		MaxMemory:    maxMem,
	}
	return withClient(global, func(c *rpc.Client) error {
		id, err := c.Start(cfg)
		if err != nil {
			return err
		}
		if global.JSON {
			return printJSON(map[string]any{"id": id, "name": name})
		}
		fmt.Printf("started %s (id %d)\n", name, id)
		return nil
	})
}

func startFromConfig(global *GlobalFlags, path string) error {
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	procs, err := f.Processes()
	if err != nil {
		return err
	}
	if len(procs) == 0 {
		return fmt.Errorf("no [apps.*] entries in %s", path)
	}
	return withClient(global, func(c *rpc.Client) error {
		type result struct {
			Name  string `json:"name"`
			ID    uint32 `json:"id,omitempty"`
			Error string `json:"error,omitempty"`
		}
		results := make([]result, 0, len(procs))
		var failed int
		for _, cfg := range procs {
			id, serr := c.Start(cfg)
			if serr != nil {
				failed++
				results = append(results, result{Name: cfg.Name, Error: serr.Error()})
				continue
			}
			results = append(results, result{Name: cfg.Name, ID: id})
		}
		if global.JSON {
			if err := printJSON(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				if r.Error != "" {
					fmt.Printf("failed  %-16s %s\n", r.Name, r.Error)
				} else {
					fmt.Printf("started %-16s (id %d)\n", r.Name, r.ID)
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d apps failed to start", failed, len(procs))
		}
		return nil
	})
}

// StopFlags holds the stop command's flags.
type StopFlags struct {
	Signal  uint8
	Timeout time.Duration
}

func newStopCmd(global *GlobalFlags) *cobra.Command {
	flags := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop <name|id>",
		Short: "Stop a running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				id, err := c.ResolveID(args[0])
				if err != nil {
					return err
				}
				if err := c.Stop(id, flags.Signal, flags.Timeout); err != nil {
					return err
				}
				return printOK(global, "stopped", args[0])
			})
		},
	}
	cmd.Flags().Uint8Var(&flags.Signal, "signal", 0, "signal number to send (default SIGTERM)")
	cmd.Flags().DurationVar(&flags.Timeout, "kill-timeout", 0, "grace before escalating to SIGKILL (default: process config)")
	return cmd
}

func newRestartCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name|id>",
		Short: "Restart a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				id, err := c.ResolveID(args[0])
				if err != nil {
					return err
				}
				if err := c.Restart(id); err != nil {
					return err
				}
				return printOK(global, "restarted", args[0])
			})
		},
	}
}

func newDeleteCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name|id>",
		Aliases: []string{"rm"},
		Short:   "Remove a process from supervision",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				id, err := c.ResolveID(args[0])
				if err != nil {
					return err
				}
				if err := c.Delete(id); err != nil {
					return err
				}
				return printOK(global, "deleted", args[0])
			})
		},
	}
}

func newListCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all processes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				rows, err := c.List()
				if err != nil {
					return err
				}
				if global.JSON {
					return printJSON(rows)
				}
				renderList(os.Stdout, rows)
				return nil
			})
		},
	}
}

func newInfoCmd(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name|id>",
		Short: "Show details for one process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				id, err := c.ResolveID(args[0])
				if err != nil {
					return err
				}
				detail, err := c.Info(id)
				if err != nil {
					return err
				}
				if global.JSON {
					return printJSON(detail)
				}
				renderDetail(os.Stdout, detail)
				return nil
			})
		},
	}
}

func newLogsCmd(global *GlobalFlags) *cobra.Command {
	var lines uint32
	cmd := &cobra.Command{
		Use:   "logs <name|id>",
		Short: "Show recent process output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(global, func(c *rpc.Client) error {
				id, err := c.ResolveID(args[0])
				if err != nil {
					return err
				}
				entries, err := c.Logs(id, lines)
				if err != nil {
					return err
				}
				if global.JSON {
					return printJSON(entries)
				}
				renderLogs(os.Stdout, entries)
				return nil
			})
		},
	}
	cmd.Flags().Uint32VarP(&lines, "lines", "l", 50, "number of lines to show")
	return cmd
}

func printOK(global *GlobalFlags, verb, target string) error {
	if global.JSON {
		return printJSON(map[string]any{"ok": true})
	}
	fmt.Printf("%s %s\n", verb, target)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

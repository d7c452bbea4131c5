//go:build unix

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// daemonize re-executes the current command line in a new session with
// stdio detached, then returns in the parent. The child runs the daemon
// in the foreground because the --daemonize flag is stripped.
func daemonize(pidFile, logFile string) error {
	if os.Getppid() == 1 {
		// already detached
		return nil
	}
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	var args []string
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		switch arg {
		case "--daemonize":
			continue
		case "--pidfile", "--logfile":
			skipNext = true
			continue
		}
		args = append(args, arg)
	}

	// #nosec G204 -- re-exec of our own binary
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	if logFile != "" {
		// #nosec G304 -- operator-supplied path
		f, ferr := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			return fmt.Errorf("open log file: %w", ferr)
		}
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background daemon: %w", err)
	}
	if pidFile != "" {
		pid := strconv.Itoa(cmd.Process.Pid)
		if err := os.WriteFile(pidFile, []byte(pid+"\n"), 0o644); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
	}
	fmt.Printf("daemon started (pid %d)\n", cmd.Process.Pid)
	return nil
}

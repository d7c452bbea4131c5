//go:build windows

package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// acquirePidLock creates the pid file exclusively. Liveness probing is not
// reliable on windows, so an existing file always means another instance.
func acquirePidLock(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if pid, rerr := readPidFile(path); rerr == nil {
				return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
			}
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to create pid file: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%d", os.Getpid())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write pid file: %w", errors.Join(werr, cerr))
	}
	return nil
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Dave93/velos/internal/rpc"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		if errors.Is(err, rpc.ErrDaemonNotRunning) {
			_, _ = fmt.Fprintln(os.Stderr, "Error: daemon is not running. Start it with: velos daemon")
		} else {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

package process

import (
	"os"
	"os/exec"
)

// BuildCommand constructs the *exec.Cmd for cfg. The interpreter, when one
// resolves, is prepended so "app.js" becomes "node app.js". The child is
// placed in its own process group so stop signals reach the whole tree.
func BuildCommand(cfg *Config, lookup LookupFunc) *exec.Cmd {
	var cmd *exec.Cmd
	if interp := ResolveInterpreter(cfg, lookup); interp != "" {
		args := append([]string{cfg.Script}, cfg.Args...)
		// #nosec G204 -- script/interpreter come from an operator-supplied config
		cmd = exec.Command(interp, args...)
	} else {
		// #nosec G204
		cmd = exec.Command(cfg.Script, cfg.Args...)
	}
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	setProcessGroup(cmd)
	return cmd
}

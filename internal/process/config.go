package process

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dave93/velos/internal/logger"
)

// Default values for omitted config fields. The durations are applied by
// Normalize; MaxRestarts and AutoRestart are resolved where a config is
// decoded (TOML, CLI, HTTP), since zero and false are valid explicit
// choices there.
const (
	DefaultKillTimeout  = 5 * time.Second
	DefaultMaxRestarts  = 15
	DefaultMinUptime    = time.Second
	DefaultRestartDelay = 0
	DefaultAutoRestart  = true
)

// Config describes a process to be supervised. A Config is immutable once
// the process has been created; changing it requires delete + recreate.
type Config struct {
	Name        string   `json:"name" mapstructure:"name"`
	Script      string   `json:"script" mapstructure:"script"`
	Cwd         string   `json:"cwd" mapstructure:"cwd"`
	Interpreter string   `json:"interpreter" mapstructure:"interpreter"` // empty = resolve via lookup, then run directly
	Args        []string `json:"args" mapstructure:"args"`
	Env         []string `json:"env" mapstructure:"env"` // extra KEY=VALUE pairs layered over the daemon env

	KillTimeout  time.Duration `json:"kill_timeout" mapstructure:"kill_timeout"`
	AutoRestart  bool          `json:"autorestart" mapstructure:"autorestart"`
	MaxRestarts  int           `json:"max_restarts" mapstructure:"max_restarts"` // -1 = unlimited, 0 = never respawn after a crash
	MinUptime    time.Duration `json:"min_uptime" mapstructure:"min_uptime"`
	RestartDelay time.Duration `json:"restart_delay" mapstructure:"restart_delay"`
	ExpBackoff   bool          `json:"exp_backoff_restart_delay" mapstructure:"exp_backoff_restart_delay"`

	// MaxMemory restarts the process when its RSS exceeds this many bytes.
	// Zero disables the limit.
	MaxMemory uint64 `json:"max_memory_restart" mapstructure:"max_memory_restart"`

	Log logger.Config `json:"log" mapstructure:"log"`
}

// Normalize applies defaults to zero-valued duration fields. It does not
// touch MaxRestarts: zero is a real budget, so its default belongs to the
// surfaces that can tell an omitted field from an explicit zero.
func (c *Config) Normalize() {
	if c.KillTimeout == 0 {
		c.KillTimeout = DefaultKillTimeout
	}
	if c.MinUptime == 0 {
		c.MinUptime = DefaultMinUptime
	}
}

// Validate reports whether the config is usable for a create request.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("process name is required")
	}
	if strings.ContainsAny(c.Name, " \t\n/\\") {
		return fmt.Errorf("process name %q contains invalid characters", c.Name)
	}
	if strings.TrimSpace(c.Script) == "" {
		return fmt.Errorf("process %q: script is required", c.Name)
	}
	if c.MaxRestarts < -1 {
		return fmt.Errorf("process %q: max_restarts must be >= -1", c.Name)
	}
	if c.KillTimeout < 0 || c.MinUptime < 0 || c.RestartDelay < 0 {
		return fmt.Errorf("process %q: durations cannot be negative", c.Name)
	}
	return nil
}

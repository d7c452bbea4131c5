// Package config loads the velos TOML file. The file declares apps to
// supervise plus daemon-level sections for logging, history and state.
//
// Example:
//
//	[state]
//	dir = "/var/lib/velos"
//
//	[logs]
//	dir = "/var/log/velos"
//	max_size_mb = 10
//
//	[history]
//	dsn = "sqlite:///var/lib/velos/history.db"
//
//	[apps.web]
//	script = "/srv/web/server.js"
//	autorestart = true
//	max_restarts = 10
//	max_memory = "150M"
//
//	[apps.worker]
//	script = "/srv/worker/run.py"
//	interpreter = "python3"
//	restart_delay = "500ms"
//	exp_backoff_restart_delay = true
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"

	"github.com/Dave93/velos/internal/logger"
	"github.com/Dave93/velos/internal/process"
)

// App is the per-app table under [apps.<name>]. The table key supplies the
// process name. Fields mirror process.Config except max_memory, which is a
// human size string ("150M") rather than raw bytes. Autorestart and
// max_restarts are pointers so an omitted key resolves to the default
// (true, 15) while an explicit false or 0 is honored.
type App struct {
	Script       string        `toml:"script" mapstructure:"script"`
	Cwd          string        `toml:"cwd" mapstructure:"cwd"`
	Interpreter  string        `toml:"interpreter" mapstructure:"interpreter"`
	Args         []string      `toml:"args" mapstructure:"args"`
	Env          []string      `toml:"env" mapstructure:"env"`
	KillTimeout  time.Duration `toml:"kill_timeout" mapstructure:"kill_timeout"`
	AutoRestart  *bool         `toml:"autorestart" mapstructure:"autorestart"`
	MaxRestarts  *int          `toml:"max_restarts" mapstructure:"max_restarts"`
	MinUptime    time.Duration `toml:"min_uptime" mapstructure:"min_uptime"`
	RestartDelay time.Duration `toml:"restart_delay" mapstructure:"restart_delay"`
	ExpBackoff   bool          `toml:"exp_backoff_restart_delay" mapstructure:"exp_backoff_restart_delay"`
	MaxMemory    string        `toml:"max_memory" mapstructure:"max_memory"`
	Log          logger.Config `toml:"log" mapstructure:"log"`
}

type History struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type State struct {
	Dir string `toml:"dir" mapstructure:"dir"`
}

// File is the top-level TOML structure.
type File struct {
	State   State          `toml:"state" mapstructure:"state"`
	Logs    logger.Config  `toml:"logs" mapstructure:"logs"`
	History History        `toml:"history" mapstructure:"history"`
	Apps    map[string]App `toml:"apps" mapstructure:"apps"`
}

// Load reads and decodes path. Duration fields accept Go duration strings
// ("500ms", "1m30s"); viper's default decode hooks handle the conversion.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &f, nil
}

// Processes converts the [apps.*] tables into validated process configs,
// ordered by name so registration is deterministic.
func (f *File) Processes() ([]process.Config, error) {
	names := make([]string, 0, len(f.Apps))
	for name := range f.Apps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]process.Config, 0, len(names))
	for _, name := range names {
		app := f.Apps[name]
		maxMem, err := ParseSize(app.MaxMemory)
		if err != nil {
			return nil, fmt.Errorf("app %q: max_memory: %w", name, err)
		}
		autorestart := process.DefaultAutoRestart
		if app.AutoRestart != nil {
			autorestart = *app.AutoRestart
		}
		maxRestarts := process.DefaultMaxRestarts
		if app.MaxRestarts != nil {
			maxRestarts = *app.MaxRestarts
		}
		cfg := process.Config{
			Name:         name,
			Script:       app.Script,
			Cwd:          app.Cwd,
			Interpreter:  app.Interpreter,
			Args:         app.Args,
			Env:          app.Env,
			KillTimeout:  app.KillTimeout,
			AutoRestart:  autorestart,
			MaxRestarts:  maxRestarts,
			MinUptime:    app.MinUptime,
			RestartDelay: app.RestartDelay,
			ExpBackoff:   app.ExpBackoff,
			MaxMemory:    maxMem,
			Log:          app.Log,
		}
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

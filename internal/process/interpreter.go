package process

import "path/filepath"

// LookupFunc resolves a script file extension (including the leading dot)
// to an interpreter executable. It is injected into command construction so
// callers can replace or extend the heuristic.
type LookupFunc func(ext string) (string, bool)

var defaultInterpreters = map[string]string{
	".js":  "node",
	".mjs": "node",
	".cjs": "node",
	".ts":  "ts-node",
	".py":  "python3",
	".rb":  "ruby",
	".pl":  "perl",
	".php": "php",
	".sh":  "/bin/sh",
}

// DefaultLookup maps well-known script extensions to interpreters found on
// PATH. Unknown extensions report false, which makes the script run
// directly.
func DefaultLookup(ext string) (string, bool) {
	interp, ok := defaultInterpreters[ext]
	return interp, ok
}

// ResolveInterpreter returns the interpreter to use for cfg, or "" when the
// script should be executed directly.
func ResolveInterpreter(cfg *Config, lookup LookupFunc) string {
	if cfg.Interpreter != "" {
		return cfg.Interpreter
	}
	if lookup == nil {
		lookup = DefaultLookup
	}
	if interp, ok := lookup(filepath.Ext(cfg.Script)); ok {
		return interp
	}
	return ""
}

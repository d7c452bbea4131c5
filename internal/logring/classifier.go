package logring

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Severity detection is best effort. A structured line carrying a "level"
// field wins; otherwise keyword rules are tried from highest priority down
// and everything else defaults to info.

type rule struct {
	re    *regexp.Regexp
	level Level
}

var defaultRules = []rule{
	{regexp.MustCompile(`(?i)\b(fatal|panic|critical)\b`), LevelError},
	{regexp.MustCompile(`(?i)\b(error|err|exception|fail(ed|ure)?)\b`), LevelError},
	{regexp.MustCompile(`(?i)\b(warn(ing)?|deprecated)\b`), LevelWarn},
	{regexp.MustCompile(`(?i)\b(debug|trace|verbose)\b`), LevelDebug},
}

// Classify derives a severity level for a raw log line.
func Classify(line string) Level {
	if strings.HasPrefix(line, "{") {
		if lvl, ok := jsonLevel(line); ok {
			return lvl
		}
	}
	for _, r := range defaultRules {
		if r.re.MatchString(line) {
			return r.level
		}
	}
	return LevelInfo
}

func jsonLevel(line string) (Level, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return LevelInfo, false
	}
	raw, ok := obj["level"]
	if !ok {
		return LevelInfo, false
	}
	var lvl string
	if err := json.Unmarshal(raw, &lvl); err != nil {
		return LevelInfo, false
	}
	switch strings.ToLower(lvl) {
	case "fatal", "panic", "critical", "error", "err":
		return LevelError, true
	case "warn", "warning":
		return LevelWarn, true
	case "debug", "trace":
		return LevelDebug, true
	default:
		return LevelInfo, true
	}
}

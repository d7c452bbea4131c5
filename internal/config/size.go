package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize converts a human memory size to bytes. Accepted forms: a bare
// integer (bytes) or an integer with a K/M/G suffix, optionally followed
// by "B" ("150M", "512KB", "1G"). Case-insensitive. Empty means no limit.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	upper := strings.ToUpper(s)
	upper = strings.TrimSuffix(upper, "B")
	mult := uint64(1)
	switch {
	case strings.HasSuffix(upper, "K"):
		mult = 1 << 10
		upper = strings.TrimSuffix(upper, "K")
	case strings.HasSuffix(upper, "M"):
		mult = 1 << 20
		upper = strings.TrimSuffix(upper, "M")
	case strings.HasSuffix(upper, "G"):
		mult = 1 << 30
		upper = strings.TrimSuffix(upper, "G")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

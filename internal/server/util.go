package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Dave93/velos/internal/registry"
	"github.com/Dave93/velos/internal/supervisor"
)

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// isSafeName rejects names that could escape into the filesystem when used
// to derive log file paths. Allowed: letters, digits, '.', '_', '-'.
func isSafeName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// isSafeAbsPath accepts the empty string (field unset) or an absolute,
// already-clean path with no traversal segments.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	if clean != p && clean+string(filepath.Separator) != p {
		return false
	}
	for _, seg := range strings.Split(p, string(filepath.Separator)) {
		if seg == ".." {
			return false
		}
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateName), errors.Is(err, registry.ErrStillRunning),
		errors.Is(err, supervisor.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

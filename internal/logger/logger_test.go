package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}

	out, errW := cfg.Writers("web")
	require.NotNil(t, out)
	require.NotNil(t, errW)
	defer func() { _ = out.Close(); _ = errW.Close() }()

	_, err := out.Write([]byte("stdout line\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("stderr line\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "web.stdout.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "stdout line"))

	data, err = os.ReadFile(filepath.Join(dir, "web.stderr.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "stderr line"))
}

func TestWritersExplicitPathsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom.out"),
	}

	out, errW := cfg.Writers("web")
	require.NotNil(t, out)
	require.NotNil(t, errW)
	defer func() { _ = out.Close(); _ = errW.Close() }()

	_, err := out.Write([]byte("x\n"))
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "custom.out"))
	assert.NoError(t, statErr)
}

func TestWritersDisabledWhenUnconfigured(t *testing.T) {
	out, errW := Config{}.Writers("web")
	assert.Nil(t, out)
	assert.Nil(t, errW)
}

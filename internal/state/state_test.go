package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dave93/velos/internal/process"
	"github.com/Dave93/velos/internal/registry"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	saved := []registry.Saved{
		{
			ID: 1,
			Config: process.Config{
				Name:        "web",
				Script:      "server.js",
				Args:        []string{"--port", "8080"},
				Env:         []string{"NODE_ENV=production"},
				AutoRestart: true,
				MaxRestarts: 15,
				MinUptime:   time.Second,
				KillTimeout: 5 * time.Second,
			},
			Restarts: 3,
			Status:   process.Running,
		},
		{
			ID:     4,
			Config: process.Config{Name: "worker", Script: "worker.py"},
			Status: process.Errored,
		},
	}
	require.NoError(t, st.Save(ctx, saved))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, saved[0], got[0])
	assert.Equal(t, saved[1], got[1])
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	require.NoError(t, st.Save(ctx, []registry.Saved{
		{ID: 1, Config: process.Config{Name: "a", Script: "a.sh"}},
		{ID: 2, Config: process.Config{Name: "b", Script: "b.sh"}},
	}))
	require.NoError(t, st.Save(ctx, []registry.Saved{
		{ID: 2, Config: process.Config{Name: "b", Script: "b.sh"}},
	}))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Config.Name)
}

func TestLoadEmptyDatabase(t *testing.T) {
	st, err := Open("")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	got, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), []registry.Saved{
		{ID: 7, Config: process.Config{Name: "svc", Script: "svc.sh"}},
	}))
	require.NoError(t, st.Close())

	st2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = st2.Close() }()

	got, err := st2.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(7), got[0].ID)
}

package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dave93/velos/internal/process"
)

func cfg(name string) process.Config {
	return process.Config{Name: name, Script: "/bin/true"}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	r := New()
	a, err := r.Create(cfg("a"))
	require.NoError(t, err)
	b, err := r.Create(cfg("b"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), a)
	assert.Equal(t, uint32(2), b)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	r := New()
	_, err := r.Create(cfg("web"))
	require.NoError(t, err)
	_, err = r.Create(cfg("web"))
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	r := New()
	_, err := r.Create(process.Config{Name: "noscript"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = r.Create(process.Config{Name: "bad name", Script: "/bin/true"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGetAndGetByName(t *testing.T) {
	r := New()
	id, err := r.Create(cfg("web"))
	require.NoError(t, err)

	byID, err := r.Get(id)
	require.NoError(t, err)
	byName, err := r.GetByName("web")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byName.ID)
	assert.NotNil(t, byID.Ring)

	_, err = r.Get(999)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetByName("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsSnapshotCopy(t *testing.T) {
	r := New()
	id, err := r.Create(cfg("web"))
	require.NoError(t, err)

	snap, err := r.Get(id)
	require.NoError(t, err)
	snap.Runtime.PID = 12345

	again, err := r.Get(id)
	require.NoError(t, err)
	assert.Zero(t, again.Runtime.PID)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := r.Create(cfg(name))
		require.NoError(t, err)
	}
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "zeta", list[0].Name)
	assert.Equal(t, "alpha", list[1].Name)
	assert.Equal(t, "mid", list[2].Name)
}

func TestListComputesUptimeForAliveOnly(t *testing.T) {
	r := New()
	a, _ := r.Create(cfg("up"))
	b, _ := r.Create(cfg("down"))
	require.NoError(t, r.Update(a, func(e *Entry) {
		e.Runtime.Status = process.Running
		e.Runtime.StartedAt = time.Now().Add(-time.Minute)
	}))
	require.NoError(t, r.Update(b, func(e *Entry) {
		e.Runtime.Status = process.Stopped
	}))
	list := r.List()
	assert.GreaterOrEqual(t, list[0].Uptime, 59*time.Second)
	assert.Zero(t, list[1].Uptime)
}

func TestRemoveRefusesAliveProcess(t *testing.T) {
	r := New()
	id, _ := r.Create(cfg("web"))
	require.NoError(t, r.Update(id, func(e *Entry) {
		e.Runtime.Status = process.Running
	}))
	require.ErrorIs(t, r.Remove(id), ErrStillRunning)

	require.NoError(t, r.Update(id, func(e *Entry) {
		e.Runtime.Status = process.Stopped
	}))
	require.NoError(t, r.Remove(id))
	_, err := r.Get(id)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Remove(id), ErrNotFound)
}

func TestRemoveFreesName(t *testing.T) {
	r := New()
	id, _ := r.Create(cfg("web"))
	require.NoError(t, r.Remove(id))
	id2, err := r.Create(cfg("web"))
	require.NoError(t, err)
	assert.NotEqual(t, id, id2, "ids are never reused")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := New()
	a, _ := r.Create(cfg("web"))
	_, _ = r.Create(cfg("worker"))
	require.NoError(t, r.Update(a, func(e *Entry) {
		e.Runtime.Status = process.Running
		e.Runtime.Restarts = 7
	}))

	saved := r.Snapshot()
	require.Len(t, saved, 2)
	assert.Equal(t, process.Running, saved[0].Status)
	assert.Equal(t, uint32(7), saved[0].Restarts)

	fresh := New()
	require.NoError(t, fresh.Restore(saved))
	e, err := fresh.Get(a)
	require.NoError(t, err)
	assert.Equal(t, process.Stopped, e.Runtime.Status, "restored entries come back stopped")
	assert.Equal(t, uint32(7), e.Runtime.Restarts)

	// id watermark advanced past the highest restored id
	next, err := fresh.Create(cfg("new"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), next)
}

func TestRestoreRequiresEmptyRegistry(t *testing.T) {
	r := New()
	_, _ = r.Create(cfg("web"))
	saved := r.Snapshot()
	require.Error(t, r.Restore(saved))
}

func TestSetMemoryIgnoresMissingID(t *testing.T) {
	r := New()
	r.SetMemory(42, 1<<20) // no panic, no error
	id, _ := r.Create(cfg("web"))
	r.SetMemory(id, 1<<20)
	e, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), e.Runtime.Memory)
}

func TestConcurrentCreateAndList(t *testing.T) {
	r := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = r.Create(cfg(fmt.Sprintf("p%d", i)))
		}
	}()
	for i := 0; i < 100; i++ {
		_ = r.List()
	}
	<-done
	assert.Len(t, r.List(), 100)
}

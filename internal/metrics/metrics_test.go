package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// Second call is a no-op.
	require.NoError(t, Register(reg))

	IncStart("web")
	IncRestart("web")
	IncStop("web")
	IncError("web")
	RecordStateTransition("web", "starting", "running")
	SetMemory("web", 1<<20)
	SetCPU("web", 12.5)
	SetUp("web", true)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["velos_process_starts_total"])
	assert.True(t, names["velos_process_memory_rss_bytes"])
	assert.True(t, names["velos_process_up"])

	Forget("web")
}

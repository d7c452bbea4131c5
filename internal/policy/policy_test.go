package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dave93/velos/internal/process"
)

func restartCfg() *process.Config {
	return &process.Config{
		Name:         "t",
		Script:       "/bin/true",
		AutoRestart:  true,
		MaxRestarts:  15,
		MinUptime:    time.Second,
		RestartDelay: 100 * time.Millisecond,
	}
}

func TestExplicitStopWins(t *testing.T) {
	cfg := restartCfg()
	d := DecideExit(cfg, 10*time.Millisecond, true, 3)
	assert.Equal(t, Stop, d.Kind)
	assert.Equal(t, 3, d.Consecutive)
}

func TestNoAutoRestartGivesUp(t *testing.T) {
	cfg := restartCfg()
	cfg.AutoRestart = false
	d := DecideExit(cfg, time.Minute, false, 0)
	assert.Equal(t, GiveUp, d.Kind)
}

func TestCrashIncrementsStreak(t *testing.T) {
	cfg := restartCfg()
	d := DecideExit(cfg, 10*time.Millisecond, false, 0)
	assert.Equal(t, Restart, d.Kind)
	assert.Equal(t, 1, d.Consecutive)
	assert.Equal(t, 100*time.Millisecond, d.Delay)
}

func TestStableRunResetsStreak(t *testing.T) {
	cfg := restartCfg()
	d := DecideExit(cfg, 2*time.Second, false, 7)
	assert.Equal(t, Restart, d.Kind)
	assert.Equal(t, 1, d.Consecutive)
}

func TestBudgetExhaustionGivesUp(t *testing.T) {
	cfg := restartCfg()
	cfg.MaxRestarts = 2
	d := DecideExit(cfg, 10*time.Millisecond, false, 2)
	assert.Equal(t, GiveUp, d.Kind)
	assert.Equal(t, 3, d.Consecutive)
}

func TestUnlimitedBudgetNeverGivesUp(t *testing.T) {
	cfg := restartCfg()
	cfg.MaxRestarts = -1
	d := DecideExit(cfg, 10*time.Millisecond, false, 100000)
	assert.Equal(t, Restart, d.Kind)
}

func TestZeroBudgetGivesUpImmediately(t *testing.T) {
	cfg := restartCfg()
	cfg.MaxRestarts = 0
	d := DecideExit(cfg, 10*time.Millisecond, false, 0)
	assert.Equal(t, GiveUp, d.Kind)
}

func TestExponentialBackoffDoubles(t *testing.T) {
	cfg := restartCfg()
	cfg.ExpBackoff = true
	base := 100 * time.Millisecond

	for k, want := range map[int]time.Duration{
		1: base,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 800 * time.Millisecond,
	} {
		d := DecideExit(cfg, 10*time.Millisecond, false, k-1)
		assert.Equal(t, Restart, d.Kind)
		assert.Equal(t, want, d.Delay, "k=%d", k)
	}
}

func TestBackoffDelayCeiling(t *testing.T) {
	assert.Equal(t, BackoffCeiling, BackoffDelay(time.Second, 30))
	assert.Equal(t, BackoffCeiling, BackoffDelay(40*time.Second, 1))
	assert.Equal(t, time.Duration(0), BackoffDelay(0, 3))
	assert.Equal(t, time.Duration(0), BackoffDelay(time.Second, 0))
}

func TestFixedDelayWithoutBackoff(t *testing.T) {
	cfg := restartCfg()
	cfg.RestartDelay = 250 * time.Millisecond
	for _, streak := range []int{0, 3, 10} {
		d := DecideExit(cfg, 10*time.Millisecond, false, streak)
		assert.Equal(t, 250*time.Millisecond, d.Delay)
	}
}

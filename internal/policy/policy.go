// Package policy implements the restart decision logic. It is pure: the
// supervisor feeds it the config and the runtime history of one exit event
// and applies whatever it decides.
package policy

import (
	"time"

	"github.com/Dave93/velos/internal/process"
)

// BackoffCeiling caps exponential restart delays so a long crash streak
// cannot push the delay toward infinity.
const BackoffCeiling = 30 * time.Second

// Kind classifies the outcome of an exit decision.
type Kind int

const (
	// Restart schedules a respawn after Decision.Delay.
	Restart Kind = iota
	// Stop transitions to Stopped (operator-initiated exit).
	Stop
	// GiveUp transitions to Errored; the crash sequence is over.
	GiveUp
)

// Decision is the outcome of evaluating one child-exit event.
type Decision struct {
	Kind Kind
	// Delay before the respawn is issued; only meaningful for Restart.
	Delay time.Duration
	// Consecutive is the updated consecutive-restart counter the caller
	// must store back on the runtime.
	Consecutive int
}

// DecideExit evaluates a child exit. uptime is how long the run lasted,
// explicitStop marks an operator-requested stop, and consecutive is the
// current consecutive-restart counter. It is called exactly once per exit,
// serialized per process id by the supervisor.
func DecideExit(cfg *process.Config, uptime time.Duration, explicitStop bool, consecutive int) Decision {
	// A stable run ends the current crash streak before this exit is
	// evaluated.
	if uptime >= cfg.MinUptime {
		consecutive = 0
	}
	if explicitStop {
		return Decision{Kind: Stop, Consecutive: consecutive}
	}
	if !cfg.AutoRestart {
		return Decision{Kind: GiveUp, Consecutive: consecutive}
	}
	consecutive++
	if cfg.MaxRestarts >= 0 && consecutive > cfg.MaxRestarts {
		return Decision{Kind: GiveUp, Consecutive: consecutive}
	}
	delay := cfg.RestartDelay
	if cfg.ExpBackoff {
		delay = BackoffDelay(cfg.RestartDelay, consecutive)
	}
	return Decision{Kind: Restart, Delay: delay, Consecutive: consecutive}
}

// BackoffDelay computes base × 2^(k−1) capped at BackoffCeiling, where k is
// the consecutive-restart counter (k ≥ 1).
func BackoffDelay(base time.Duration, k int) time.Duration {
	if base <= 0 || k <= 0 {
		return 0
	}
	d := base
	for i := 1; i < k; i++ {
		d *= 2
		if d >= BackoffCeiling {
			return BackoffCeiling
		}
	}
	if d > BackoffCeiling {
		return BackoffCeiling
	}
	return d
}

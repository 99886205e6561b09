// internal/detector/detector.go

// Package detector tracks the most recently observed active pool and flags
// genuine pool identity changes.
package detector

import (
	"time"

	"github.com/FairForge/poolwatch/internal/logparse"
)

// PoolState is the last attributed pool observation. It is owned by the
// Detector instance, which in turn is owned by the watcher loop; there is
// no process-wide state.
type PoolState struct {
	Pool      logparse.Pool `json:"pool"`
	ChangedAt time.Time     `json:"changed_at"`
}

// Transition records an observed failover between pools.
type Transition struct {
	From     logparse.Pool `json:"from"`
	To       logparse.Pool `json:"to"`
	At       time.Time     `json:"at"`
	Release  string        `json:"release"`
	Upstream string        `json:"upstream"`
}

// Detector compares each attributed event against the previous pool
// observation. Correctness depends on events arriving in order, so the
// watcher loop is the sole caller of Observe.
type Detector struct {
	state PoolState
}

// NewDetector creates a detector with no pool observed yet.
func NewDetector() *Detector {
	return &Detector{state: PoolState{Pool: logparse.PoolUnknown}}
}

// Observe updates pool state from one event. Events with an unknown pool
// never update state and never produce a transition. The first attributed
// pool seeds the state silently; only a subsequent change in pool identity
// returns a Transition.
func (d *Detector) Observe(ev logparse.LogEvent) (*Transition, bool) {
	if ev.Pool == logparse.PoolUnknown {
		return nil, false
	}

	if d.state.Pool == logparse.PoolUnknown {
		d.state = PoolState{Pool: ev.Pool, ChangedAt: ev.Timestamp}
		return nil, false
	}

	if ev.Pool == d.state.Pool {
		return nil, false
	}

	tr := &Transition{
		From:     d.state.Pool,
		To:       ev.Pool,
		At:       ev.Timestamp,
		Release:  ev.Release,
		Upstream: ev.Upstream,
	}
	d.state = PoolState{Pool: ev.Pool, ChangedAt: ev.Timestamp}
	return tr, true
}

// State returns the current pool observation.
func (d *Detector) State() PoolState { return d.state }

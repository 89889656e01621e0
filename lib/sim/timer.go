package sim

import (
	"time"
)

/* timer.go contains the named phase timers. They are not needed for
correctness, but their Start/Stop calls mark the phase transitions the
batch loop is organized around. */

// Timer accumulates wall time across Start/Stop pairs.
type Timer struct {
	total   time.Duration
	started time.Time
	running bool
}

// Start begins timing. Starting a running timer is a no-op.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.started = time.Now()
	t.running = true
}

// Stop ends timing and accumulates the elapsed interval. Stopping a stopped
// timer is a no-op.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.total += time.Since(t.started)
	t.running = false
}

// Total returns the accumulated time, including the current interval if the
// timer is running.
func (t *Timer) Total() time.Duration {
	if t.running {
		return t.total + time.Since(t.started)
	}
	return t.total
}

// Timers is the set of phase timers a run maintains.
type Timers struct {
	Total     Timer
	Transport Timer
	Inactive  Timer
	Active    Timer
	Tallies   Timer
	Finalize  Timer
}

// StopAll stops every timer.
func (ts *Timers) StopAll() {
	ts.Transport.Stop()
	ts.Inactive.Stop()
	ts.Active.Stop()
	ts.Tallies.Stop()
	ts.Finalize.Stop()
	ts.Total.Stop()
}

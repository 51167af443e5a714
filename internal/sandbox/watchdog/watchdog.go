// Package watchdog detects a depth sensor that has stopped delivering frames
// and asks the owner to recover it.
package watchdog

import (
	"sync"
	"time"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// State is the watchdog's view of the sensor.
type State int

const (
	Healthy State = iota
	HangDetected
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case HangDetected:
		return "hang_detected"
	default:
		return "unknown"
	}
}

// Watchdog tracks the last frame heartbeat. The timeout callback fires once
// per hang and is re-armed by ResetHeartbeat.
type Watchdog struct {
	clock     timeutil.Clock
	onTimeout func()

	mu        sync.Mutex
	state     State
	heartbeat time.Time
	fired     uint64
}

// New returns a Healthy watchdog whose heartbeat is now. A nil clock uses
// the wall clock.
func New(clock timeutil.Clock, onTimeout func()) *Watchdog {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Watchdog{
		clock:     clock,
		onTimeout: onTimeout,
		heartbeat: clock.Now(),
	}
}

// ResetHeartbeat records a frame arrival and forces the Healthy state.
func (w *Watchdog) ResetHeartbeat() {
	w.mu.Lock()
	w.heartbeat = w.clock.Now()
	if w.state != Healthy {
		monitoring.Logf("[Watchdog] sensor recovered")
	}
	w.state = Healthy
	w.mu.Unlock()
}

// Update checks the heartbeat age against timeout. With autoRetry off it
// does nothing. The callback runs on the caller's goroutine without the lock
// held, so it may call ResetHeartbeat.
func (w *Watchdog) Update(timeout time.Duration, autoRetry bool) {
	if !autoRetry {
		return
	}
	w.mu.Lock()
	elapsed := w.clock.Since(w.heartbeat)
	if w.state != Healthy || elapsed <= timeout {
		w.mu.Unlock()
		return
	}
	w.state = HangDetected
	w.fired++
	cb := w.onTimeout
	w.mu.Unlock()

	monitoring.Logf("[Watchdog] sensor hang detected: no frame for %v (timeout %v)", elapsed.Round(time.Millisecond), timeout)
	if cb != nil {
		cb()
	}
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SinceLastFrame returns the heartbeat age.
func (w *Watchdog) SinceLastFrame() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clock.Since(w.heartbeat)
}

// Fired returns how many times the timeout callback has been invoked.
func (w *Watchdog) Fired() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

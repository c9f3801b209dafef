// Package health tracks whether the data shown to the user is still fresh.
// Polling loops report each cycle; the tracker derives a state that the
// presentation layer and /health expose.
package health

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// State represents the freshness of polled data
type State int

// Tracker states
const (
	StateHealthy  State = iota // Last cycle succeeded
	StateDegraded              // Recent failures, data is still recent
	StateStale                 // No success for longer than the stale threshold
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Thresholds defines when the tracker leaves the healthy state
type Thresholds struct {
	// Consecutive failures before the state becomes degraded
	DegradedAfter int `json:"degraded_after"`

	// Time without a successful cycle before the state becomes stale
	StaleAfter time.Duration `json:"stale_after"`
}

// DefaultThresholds suit a 2s poll interval.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedAfter: 1,
		StaleAfter:    30 * time.Second,
	}
}

// Status is a point-in-time view of a tracker.
type Status struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Tracker records the outcome of polling cycles.
type Tracker struct {
	name       string
	thresholds Thresholds
	clock      clockwork.Clock

	mu          sync.RWMutex
	failures    int
	lastSuccess time.Time
	lastErr     error
	started     time.Time
	reported    State

	// Event callback for state transitions
	onChange func(name string, from, to State)
}

// New creates a Tracker for the named loop.
func New(name string, t Thresholds, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		name:       name,
		thresholds: t,
		clock:      clock,
		started:    clock.Now(),
	}
}

// WithChangeCallback sets a function called on every state transition.
func (t *Tracker) WithChangeCallback(cb func(name string, from, to State)) *Tracker {
	t.onChange = cb
	return t
}

// Success records a successful cycle.
func (t *Tracker) Success() {
	t.mu.Lock()
	t.failures = 0
	t.lastErr = nil
	t.lastSuccess = t.clock.Now()
	from, to, changed := t.transitionLocked()
	t.mu.Unlock()

	t.notify(from, to, changed)
}

// Failure records a failed cycle.
func (t *Tracker) Failure(err error) {
	t.mu.Lock()
	t.failures++
	t.lastErr = err
	from, to, changed := t.transitionLocked()
	t.mu.Unlock()

	t.notify(from, to, changed)
}

// State returns the current state. Staleness is time based, so the state can
// change without any new report.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.computeLocked()
}

// Status returns a snapshot suitable for JSON output.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Status{
		Name:                t.name,
		State:               t.computeLocked().String(),
		ConsecutiveFailures: t.failures,
		LastSuccess:         t.lastSuccess,
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}

// Reset forcibly returns the tracker to the healthy state
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.failures = 0
	t.lastErr = nil
	t.lastSuccess = t.clock.Now()
	t.reported = StateHealthy
	t.mu.Unlock()
	logrus.WithField("tracker", t.name).Info("Health tracker reset")
}

func (t *Tracker) computeLocked() State {
	ref := t.lastSuccess
	if ref.IsZero() {
		ref = t.started
	}
	if t.thresholds.StaleAfter > 0 && t.clock.Since(ref) > t.thresholds.StaleAfter {
		return StateStale
	}
	if t.failures > 0 && t.failures >= t.thresholds.DegradedAfter {
		return StateDegraded
	}
	return StateHealthy
}

func (t *Tracker) transitionLocked() (State, State, bool) {
	from := t.reported
	to := t.computeLocked()
	t.reported = to
	return from, to, from != to
}

func (t *Tracker) notify(from, to State, changed bool) {
	if !changed {
		return
	}
	entry := logrus.WithFields(logrus.Fields{"tracker": t.name, "from": from.String(), "to": to.String()})
	if to == StateHealthy {
		entry.Info("Data source recovered")
	} else {
		entry.Warn("Data source health changed")
	}
	if t.onChange != nil {
		t.onChange(t.name, from, to)
	}
}

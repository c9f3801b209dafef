package health

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Transitions(t *testing.T) {
	fc := clockwork.NewFakeClock()

	var transitions []State
	tr := New("poller", Thresholds{DegradedAfter: 2, StaleAfter: 10 * time.Second}, fc).
		WithChangeCallback(func(name string, from, to State) {
			assert.Equal(t, "poller", name)
			transitions = append(transitions, to)
		})

	assert.Equal(t, StateHealthy, tr.State(), "tracker starts healthy")

	tr.Failure(errors.New("timeout"))
	assert.Equal(t, StateHealthy, tr.State(), "one failure is below the threshold")

	tr.Failure(errors.New("timeout"))
	assert.Equal(t, StateDegraded, tr.State())

	status := tr.Status()
	assert.Equal(t, "degraded", status.State)
	assert.Equal(t, 2, status.ConsecutiveFailures)
	assert.Equal(t, "timeout", status.LastError)

	tr.Success()
	assert.Equal(t, StateHealthy, tr.State())
	assert.Empty(t, tr.Status().LastError)

	require.Equal(t, []State{StateDegraded, StateHealthy}, transitions)
}

func TestTracker_StaleWithoutSuccess(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tr := New("prices", DefaultThresholds(), fc)

	tr.Success()
	fc.Advance(29 * time.Second)
	assert.Equal(t, StateHealthy, tr.State())

	fc.Advance(2 * time.Second)
	assert.Equal(t, StateStale, tr.State(), "staleness is derived from time alone")

	tr.Failure(errors.New("still down"))
	assert.Equal(t, StateStale, tr.State())

	tr.Reset()
	assert.Equal(t, StateHealthy, tr.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "stale", StateStale.String())
	assert.Equal(t, "unknown", State(9).String())
}

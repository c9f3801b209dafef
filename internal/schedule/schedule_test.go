package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery_RunsImmediatelyThenOnTick(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- Every(ctx, fc, 2*time.Second, func(context.Context) { runs <- struct{}{} })
	}()

	waitRun(t, runs)

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))

	fc.Advance(time.Second)
	select {
	case <-runs:
		t.Fatal("task ran before the interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(time.Second)
	waitRun(t, runs)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestTrigger_Coalesces(t *testing.T) {
	tr := NewTrigger()
	tr.Fire()
	tr.Fire()
	tr.Fire()

	<-tr.C()
	select {
	case <-tr.C():
		t.Fatal("expected a single pending wake-up")
	default:
	}
}

func waitRun(t *testing.T, runs <-chan struct{}) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

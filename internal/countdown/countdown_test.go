package countdown

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		target time.Time
		want   string
	}{
		{"ninety seconds", now.Add(90 * time.Second), "01:30"},
		{"fraction floors", now.Add(89*time.Second + 900*time.Millisecond), "01:29"},
		{"under a minute", now.Add(5 * time.Second), "00:05"},
		{"over an hour uses total minutes", now.Add(75 * time.Minute), "75:00"},
		{"exactly now", now, StartingSoon},
		{"in the past", now.Add(-time.Minute), StartingSoon},
		{"sub second", now.Add(500 * time.Millisecond), "00:00"},
		{"other zone", now.In(time.FixedZone("UTC+2", 7200)).Add(90 * time.Second), "01:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.target, now))
		})
	}
}

func TestFormat_TicksDown(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	target := now.Add(90 * time.Second)

	assert.Equal(t, "01:30", Format(target, now))
	assert.Equal(t, "01:29", Format(target, now.Add(time.Second)))
}

func TestRoundRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, RoundRemaining(now.Add(-45*time.Second), now, 30*time.Second))
	assert.Equal(t, 30, RoundRemaining(now, now, 30*time.Second))
	assert.Equal(t, 20, RoundRemaining(now.Add(-10*time.Second), now, 30*time.Second))
	assert.Equal(t, 20, RoundRemaining(now.Add(-10500*time.Millisecond), now, 30*time.Second), "elapsed time is floored")
	assert.Equal(t, 25, RoundRemaining(now.Add(-5*time.Second), now, 0), "zero window falls back to the default")
}

func TestRun_TicksEverySecond(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start)
	target := start.Add(90 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	labels := make(chan string, 10)
	go func() {
		_ = Run(ctx, fc, func(now time.Time) { labels <- Format(target, now) })
	}()

	assert.Equal(t, "01:30", receive(t, labels))

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))

	fc.Advance(time.Second)
	assert.Equal(t, "01:29", receive(t, labels))
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no tick received")
		return ""
	}
}

// Package countdown computes the timers shown next to epochs and rounds.
// Both timers are pure functions of a target and the current time, so they
// keep ticking while the network is unavailable.
package countdown

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yourorg/predictpool-client/internal/schedule"
)

// StartingSoon is shown once an epoch's start time has been reached.
const StartingSoon = "Starting soon"

// DefaultRoundWindow is how long a round stays open for predictions.
const DefaultRoundWindow = 30 * time.Second

// Format renders the time left until target as zero-padded MM:SS, using total
// minutes so that long waits read e.g. "75:00". A target that is not in the
// future renders as StartingSoon.
func Format(target, now time.Time) string {
	diff := target.UTC().Sub(now.UTC())
	if diff <= 0 {
		return StartingSoon
	}
	secs := int64(diff / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// RoundRemaining returns the whole seconds left in a round that started at
// start and lasts window, floored at 0.
func RoundRemaining(start, now time.Time, window time.Duration) int {
	if window <= 0 {
		window = DefaultRoundWindow
	}
	elapsed := int64(now.UTC().Sub(start.UTC()) / time.Second)
	left := int64(window/time.Second) - elapsed
	if left < 0 {
		return 0
	}
	return int(left)
}

// Run calls fn with the current time immediately and then every second
// until ctx is cancelled.
func Run(ctx context.Context, clock clockwork.Clock, fn func(now time.Time)) error {
	return RunEvery(ctx, clock, time.Second, fn)
}

// RunEvery is Run with a custom interval.
func RunEvery(ctx context.Context, clock clockwork.Clock, interval time.Duration, fn func(now time.Time)) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return schedule.Every(ctx, clock, interval, func(context.Context) {
		fn(clock.Now())
	})
}

// Package schedule runs periodic tasks on an injectable clock.
package schedule

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a unit of periodic work. It receives the runner's context and
// must return promptly once that context is cancelled.
type Task func(ctx context.Context)

// Every runs task once immediately and then every interval until ctx is
// cancelled. Runs never overlap: a slow run delays the next tick instead of
// stacking up. It returns ctx.Err().
func Every(ctx context.Context, clock clockwork.Clock, interval time.Duration, task Task) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	task(ctx)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			task(ctx)
		}
	}
}

// Trigger is a coalescing wake-up signal. Any number of Fire calls made while
// the consumer is busy collapse into a single pending wake-up.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger returns a ready to use Trigger.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Fire requests a wake-up without blocking.
func (t *Trigger) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C is the channel the consumer selects on.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}

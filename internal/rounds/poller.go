// Package rounds keeps the client's view of the current epoch and its rounds
// in sync with the backend.
package rounds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/health"
	"github.com/yourorg/predictpool-client/internal/metrics"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/schedule"
	"github.com/yourorg/predictpool-client/internal/validation"
)

// DefaultInterval is how often the backend is polled.
const DefaultInterval = 2 * time.Second

// Source is the part of the backend API the poller reads.
type Source interface {
	CurrentEpoch(ctx context.Context) (model.Epoch, error)
	EpochRounds(ctx context.Context, epochID int64) ([]model.Round, error)
}

// Snapshot is a consistent view of the polled state.
type Snapshot struct {
	Epoch     *model.Epoch  `json:"epoch"`
	Rounds    []model.Round `json:"rounds"`
	Relevant  *model.Round  `json:"relevant_round"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RelevantID returns the relevant round id, or 0 when there is none.
func (s Snapshot) RelevantID() int64 {
	if s.Relevant == nil {
		return 0
	}
	return s.Relevant.ID
}

// ActiveRoundID returns the relevant round id if that round accepts
// predictions, or 0.
func (s Snapshot) ActiveRoundID() int64 {
	if s.Relevant == nil || !s.Relevant.CanPredict() {
		return 0
	}
	return s.Relevant.ID
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{UpdatedAt: s.UpdatedAt}
	if s.Epoch != nil {
		e := *s.Epoch
		out.Epoch = &e
	}
	if s.Relevant != nil {
		r := *s.Relevant
		out.Relevant = &r
	}
	if s.Rounds != nil {
		out.Rounds = make([]model.Round, len(s.Rounds))
		copy(out.Rounds, s.Rounds)
	}
	return out
}

// Poller periodically fetches the current epoch and its rounds. Failed or
// empty cycles keep the previous state.
type Poller struct {
	src      Source
	interval time.Duration
	clock    clockwork.Clock
	tracker  *health.Tracker
	metrics  *metrics.Metrics
	log      *logrus.Entry

	mu        sync.RWMutex
	state     Snapshot
	listeners []func(Snapshot)
}

// NewPoller creates a Poller. tracker and m may be nil.
func NewPoller(src Source, interval time.Duration, clock clockwork.Clock, tracker *health.Tracker, m *metrics.Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		src:      src,
		interval: interval,
		clock:    clock,
		tracker:  tracker,
		metrics:  m,
		log:      logrus.WithField("component", "poller"),
	}
}

// OnUpdate registers fn to be called with the new snapshot after every
// applied cycle. Listeners run on the polling goroutine and must not block.
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.WithField("interval", p.interval).Info("Round poller started")
	err := schedule.Every(ctx, p.clock, p.interval, func(ctx context.Context) {
		_ = p.Poll(ctx)
	})
	p.log.Info("Round poller stopped")
	return err
}

// Poll runs one cycle. The returned error is informational: the previous
// state has already been kept when it is non-nil.
func (p *Poller) Poll(ctx context.Context) error {
	epoch, err := p.src.CurrentEpoch(ctx)
	if err != nil {
		return p.fail(ctx, fmt.Errorf("fetching current epoch: %w", err))
	}

	fetched, err := p.src.EpochRounds(ctx, epoch.ID)
	if err != nil {
		return p.fail(ctx, fmt.Errorf("fetching rounds of epoch %d: %w", epoch.ID, err))
	}

	valid := validation.FilterRounds(fetched, epoch.ID)
	if len(valid) == 0 {
		p.metrics.PollCycle("empty")
		p.log.WithField("epoch", epoch.ID).Warn("Backend returned no rounds, keeping previous state")
		if p.tracker != nil {
			p.tracker.Failure(errors.New("empty round list"))
		}
		return nil
	}

	sorted := SortByID(valid)
	next := Snapshot{
		Epoch:     &epoch,
		Rounds:    sorted,
		Relevant:  SelectRelevant(sorted),
		UpdatedAt: p.clock.Now(),
	}

	p.mu.Lock()
	prevRelevant := p.state.RelevantID()
	p.state = next
	listeners := append([]func(Snapshot){}, p.listeners...)
	p.mu.Unlock()

	p.metrics.PollCycle("ok")
	p.metrics.SetRoundState(epoch.ID, next.RelevantID())
	if p.tracker != nil {
		p.tracker.Success()
	}
	if prevRelevant != next.RelevantID() {
		p.log.WithFields(logrus.Fields{
			"epoch":          epoch.ID,
			"relevant_round": next.RelevantID(),
			"previous_round": prevRelevant,
		}).Info("Relevant round changed")
	}

	for _, fn := range listeners {
		fn(next.clone())
	}
	return nil
}

func (p *Poller) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.metrics.PollCycle("error")
	if errors.Is(err, model.ErrNotFound) {
		p.log.WithError(err).Warn("No current epoch, keeping previous state")
	} else {
		p.log.WithError(err).Warn("Poll cycle failed, keeping previous state")
	}
	if p.tracker != nil {
		p.tracker.Failure(err)
	}
	return err
}

// Snapshot returns a copy of the current state. Rounds are sorted by id.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.clone()
}

// Relevant returns a copy of the relevant round, or nil.
func (p *Poller) Relevant() *model.Round {
	return p.Snapshot().Relevant
}

package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/health"
	"github.com/yourorg/predictpool-client/internal/metrics"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/schedule"
)

// Source returns the current spot price.
type Source interface {
	Price(ctx context.Context) (float64, error)
	Symbol() string
}

// Watcher polls the spot price while the relevant round accepts
// predictions and keeps the last good quote.
type Watcher struct {
	src      Source
	interval time.Duration
	clock    clockwork.Clock
	tracker  *health.Tracker
	metrics  *metrics.Metrics
	log      *logrus.Entry

	mu      sync.RWMutex
	round   *model.Round
	quote   *Quote
	onQuote []func(Quote)
}

// NewWatcher creates a Watcher. tracker and m may be nil.
func NewWatcher(src Source, interval time.Duration, clock clockwork.Clock, tracker *health.Tracker, m *metrics.Metrics) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		src:      src,
		interval: interval,
		clock:    clock,
		tracker:  tracker,
		metrics:  m,
		log:      logrus.WithField("component", "pricefeed"),
	}
}

// OnQuote registers fn to be called after each successful fetch.
func (w *Watcher) OnQuote(fn func(Quote)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onQuote = append(w.onQuote, fn)
}

// ObserveRound records the currently relevant round. Polling only happens
// while it is active.
func (w *Watcher) ObserveRound(r *model.Round) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r == nil {
		w.round = nil
		return
	}
	rc := *r
	w.round = &rc
}

func (w *Watcher) active() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.round != nil && w.round.CanPredict()
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	return schedule.Every(ctx, w.clock, w.interval, func(ctx context.Context) {
		if !w.active() {
			return
		}
		_ = w.Poll(ctx)
	})
}

// Poll fetches one quote. On failure the previous quote is kept.
func (w *Watcher) Poll(ctx context.Context) error {
	price, err := w.src.Price(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		if w.tracker != nil {
			w.tracker.Failure(err)
		}
		w.log.WithError(err).Warn("Failed to fetch spot price, keeping previous quote")
		return err
	}

	q := Quote{Symbol: w.src.Symbol(), Price: price, At: w.clock.Now()}
	w.mu.Lock()
	w.quote = &q
	listeners := append([]func(Quote){}, w.onQuote...)
	w.mu.Unlock()

	if w.tracker != nil {
		w.tracker.Success()
	}
	w.metrics.SetSpotPrice(price)
	for _, fn := range listeners {
		fn(q)
	}
	return nil
}

// Quote returns the last good quote, or nil.
func (w *Watcher) Quote() *Quote {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.quote == nil {
		return nil
	}
	q := *w.quote
	return &q
}

// Change returns the percentage move of the last quote against the starting
// price of the observed round. ok is false when either side is missing.
func (w *Watcher) Change() (pct float64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.quote == nil || w.round == nil {
		return 0, false
	}
	return w.round.PriceChangePercent(w.quote.Price)
}

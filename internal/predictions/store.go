// Package predictions keeps the connected wallet's predictions and submits
// new, signed ones.
package predictions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/backend"
	"github.com/yourorg/predictpool-client/internal/metrics"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/schedule"
	"github.com/yourorg/predictpool-client/internal/validation"
)

// API is the part of the backend the store talks to.
type API interface {
	UserPredictions(ctx context.Context, address string) ([]model.PredictionWithDetails, error)
	SubmitPrediction(ctx context.Context, p model.Prediction) (backend.SubmitResponse, error)
}

// Wallet provides the address and signatures of the connected account.
type Wallet interface {
	Address() string
	SignMessage(ctx context.Context, msg string) (string, error)
}

// Store holds the predictions of the connected address keyed by round id.
type Store struct {
	api     API
	wallet  Wallet
	clock   clockwork.Clock
	metrics *metrics.Metrics
	trigger *schedule.Trigger
	log     *logrus.Entry

	mu          sync.RWMutex
	address     string
	predictions map[int64]model.PredictionWithDetails
	pending     map[int64]bool
	notice      *Notice
	lastFetch   time.Time
	activeRound int64
	rounds      map[int64]model.RoundStatus
	listeners   []func()
}

// NewStore creates an empty Store. m may be nil.
func NewStore(api API, wallet Wallet, clock clockwork.Clock, m *metrics.Metrics) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		api:         api,
		wallet:      wallet,
		clock:       clock,
		metrics:     m,
		trigger:     schedule.NewTrigger(),
		log:         logrus.WithField("component", "predictions"),
		predictions: map[int64]model.PredictionWithDetails{},
		pending:     map[int64]bool{},
		rounds:      map[int64]model.RoundStatus{},
	}
}

// OnChange registers fn to be called after any state change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Run performs the fetches requested by ObserveRounds and AddressChanged
// until ctx is cancelled. A fetch is attempted at startup when a wallet is
// already connected.
func (s *Store) Run(ctx context.Context) error {
	if s.wallet.Address() != "" {
		s.trigger.Fire()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger.C():
			if err := s.Fetch(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, model.ErrNoWallet) {
				s.log.WithError(err).Warn("Failed to fetch predictions, keeping previous map")
			}
		}
	}
}

// Fetch replaces the prediction map with the backend's view of the
// connected address. On failure the previous map is kept.
func (s *Store) Fetch(ctx context.Context) error {
	addr := s.wallet.Address()
	if addr == "" {
		return model.ErrNoWallet
	}

	preds, err := s.api.UserPredictions(ctx, addr)
	if err != nil {
		return fmt.Errorf("fetching predictions of %s: %w", addr, err)
	}

	next := make(map[int64]model.PredictionWithDetails, len(preds))
	for _, p := range validation.FilterPredictions(preds) {
		next[p.RoundID] = p
	}

	s.mu.Lock()
	if s.wallet.Address() != addr {
		// the account changed while the request was in flight
		s.mu.Unlock()
		return nil
	}
	s.address = addr
	s.predictions = next
	s.lastFetch = s.clock.Now()
	s.mu.Unlock()

	s.metrics.SetPredictionCount(len(next))
	s.log.WithFields(logrus.Fields{"address": addr, "count": len(next)}).Debug("Predictions refreshed")
	s.notify()
	return nil
}

// ObserveRounds records the statuses Submit checks against and schedules a
// refetch whenever a new round becomes active, so that settlement results of
// earlier rounds show up.
func (s *Store) ObserveRounds(rounds []model.Round) {
	statuses := make(map[int64]model.RoundStatus, len(rounds))
	var active int64
	for _, r := range rounds {
		statuses[r.ID] = r.Status
		if r.CanPredict() && (active == 0 || r.ID < active) {
			active = r.ID
		}
	}

	s.mu.Lock()
	s.rounds = statuses
	if active == 0 {
		s.mu.Unlock()
		return
	}
	changed := active != s.activeRound
	s.activeRound = active
	s.mu.Unlock()

	if changed {
		s.trigger.Fire()
	}
}

// AddressChanged reacts to wallet connect and disconnect. A disconnect
// clears the map, a new address triggers a fetch.
func (s *Store) AddressChanged(address string) {
	s.mu.Lock()
	if address != s.address {
		s.predictions = map[int64]model.PredictionWithDetails{}
		s.notice = nil
		s.lastFetch = time.Time{}
	}
	s.address = address
	s.mu.Unlock()

	s.metrics.SetPredictionCount(0)
	s.notify()
	if address != "" {
		s.trigger.Fire()
	}
}

// Predictions returns a copy of the prediction map.
func (s *Store) Predictions() map[int64]model.PredictionWithDetails {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]model.PredictionWithDetails, len(s.predictions))
	for k, v := range s.predictions {
		out[k] = v
	}
	return out
}

// Sorted returns the predictions ordered by round id, newest first.
func (s *Store) Sorted() []model.PredictionWithDetails {
	s.mu.RLock()
	out := make([]model.PredictionWithDetails, 0, len(s.predictions))
	for _, p := range s.predictions {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID > out[j].RoundID })
	return out
}

// Prediction returns the prediction for roundID, if any.
func (s *Store) Prediction(roundID int64) (model.PredictionWithDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.predictions[roundID]
	return p, ok
}

// Notice returns the message currently shown to the user, or nil.
func (s *Store) Notice() *Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.notice == nil {
		return nil
	}
	n := *s.notice
	return &n
}

// Submitting reports whether a submission is in flight.
func (s *Store) Submitting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) > 0
}

// LastFetch is when the map was last replaced.
func (s *Store) LastFetch() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetch
}

// CanSubmit reports whether the prediction buttons for round should be
// enabled: a wallet is connected, the round is active, no prediction exists
// for it and no submission is in flight.
func (s *Store) CanSubmit(round *model.Round) bool {
	if round == nil || !round.CanPredict() || s.wallet.Address() == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.predictions[round.ID]
	return !exists && len(s.pending) == 0
}

// Package ui renders the client state for a terminal.
package ui

import (
	"time"

	"github.com/yourorg/predictpool-client/internal/aggregate"
	"github.com/yourorg/predictpool-client/internal/countdown"
	"github.com/yourorg/predictpool-client/internal/health"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/predictions"
	"github.com/yourorg/predictpool-client/internal/pricefeed"
)

// Balances are the wallet's native and staked amounts, already formatted.
type Balances struct {
	Native string `json:"native"`
	Staked string `json:"staked"`
	// Symbols, e.g. MON and gMON
	NativeSymbol string `json:"native_symbol"`
	StakedSymbol string `json:"staked_symbol"`
}

// State is everything the presentation layer shows. It is assembled by the
// application from the individual components and also served as JSON.
type State struct {
	Now time.Time `json:"now"`

	Epoch    *model.Epoch  `json:"epoch,omitempty"`
	Upcoming *model.Epoch  `json:"upcoming,omitempty"`
	Rounds   []model.Round `json:"rounds"`
	Relevant *model.Round  `json:"relevant,omitempty"`

	EpochCountdown   string           `json:"epoch_countdown,omitempty"`
	RoundSecondsLeft int              `json:"round_seconds_left"`
	Quote            *pricefeed.Quote `json:"quote,omitempty"`
	PriceChange      *float64         `json:"price_change,omitempty"`

	Address     string                        `json:"address,omitempty"`
	Balances    *Balances                     `json:"balances,omitempty"`
	Predictions []model.PredictionWithDetails `json:"predictions"`
	Summary     aggregate.Summary             `json:"summary"`
	Notice      *predictions.Notice           `json:"notice,omitempty"`
	Submitting  bool                          `json:"submitting"`
	CanSubmit   bool                          `json:"can_submit"`

	Health []health.Status `json:"health,omitempty"`
}

// Tick fills in the time-derived fields for now. Both countdowns depend only
// on the stored targets, so they keep moving without fresh data.
func (s *State) Tick(now time.Time, window time.Duration) {
	s.Now = now
	s.EpochCountdown = ""
	if s.Upcoming != nil && !s.Upcoming.StartTime.IsZero() {
		s.EpochCountdown = countdown.Format(s.Upcoming.StartTime.Time, now)
	}
	s.RoundSecondsLeft = 0
	if s.Relevant != nil && s.Relevant.CanPredict() && !s.Relevant.StartTime.IsZero() {
		s.RoundSecondsLeft = countdown.RoundRemaining(s.Relevant.StartTime.Time, now, window)
	}
}

// MyPrediction returns the wallet's prediction on the relevant round.
func (s State) MyPrediction() (model.PredictionWithDetails, bool) {
	if s.Relevant == nil {
		return model.PredictionWithDetails{}, false
	}
	for _, p := range s.Predictions {
		if p.RoundID == s.Relevant.ID {
			return p, true
		}
	}
	return model.PredictionWithDetails{}, false
}

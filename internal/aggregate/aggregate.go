// Package aggregate derives summary figures from a wallet's prediction history.
package aggregate

import (
	"math"
	"sort"

	"github.com/yourorg/predictpool-client/internal/model"
)

// Summary counts settled and open predictions.
type Summary struct {
	Total   int `json:"total"`
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Pending int `json:"pending"`
	// Accuracy is wins over settled predictions in percent, 0 when nothing settled
	Accuracy float64 `json:"accuracy"`
	Up       int     `json:"up"`
	Down     int     `json:"down"`
}

// Settled is the number of predictions with a final result.
func (s Summary) Settled() int {
	return s.Wins + s.Losses
}

// Summarize counts wins, losses and open predictions.
func Summarize(preds []model.PredictionWithDetails) Summary {
	var s Summary
	for _, p := range preds {
		s.Total++
		switch p.Direction {
		case model.DirectionUp:
			s.Up++
		case model.DirectionDown:
			s.Down++
		}
		switch p.Outcome() {
		case model.OutcomeWin:
			s.Wins++
		case model.OutcomeLoss:
			s.Losses++
		default:
			s.Pending++
		}
	}
	if settled := s.Settled(); settled > 0 {
		s.Accuracy = float64(s.Wins) / float64(settled) * 100
	}
	return s
}

// EpochSummary is a Summary restricted to one epoch.
type EpochSummary struct {
	EpochID int64 `json:"epoch_id"`
	Summary
}

// ByEpoch groups predictions by epoch, newest epoch first.
func ByEpoch(preds []model.PredictionWithDetails) []EpochSummary {
	groups := make(map[int64][]model.PredictionWithDetails)
	for _, p := range preds {
		groups[p.EpochID] = append(groups[p.EpochID], p)
	}

	out := make([]EpochSummary, 0, len(groups))
	for id, g := range groups {
		out = append(out, EpochSummary{EpochID: id, Summary: Summarize(g)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpochID > out[j].EpochID })
	return out
}

// Streak returns the length of the current run of equal results over
// completed predictions, most recent round first. win tells whether it is a
// winning run.
func Streak(preds []model.PredictionWithDetails) (n int, win bool) {
	done := make([]model.PredictionWithDetails, 0, len(preds))
	for _, p := range preds {
		if p.IsCompleted() {
			done = append(done, p)
		}
	}
	if len(done) == 0 {
		return 0, false
	}
	sort.Slice(done, func(i, j int) bool { return done[i].RoundID > done[j].RoundID })

	win = done[0].Correct()
	for _, p := range done {
		if p.Correct() != win {
			break
		}
		n++
	}
	return n, win
}

// MedianMove is the median absolute price move in percent over completed
// rounds. Less sensitive to single volatile rounds than the mean.
func MedianMove(preds []model.PredictionWithDetails) float64 {
	values := make([]float64, 0, len(preds))
	for _, p := range preds {
		if pct, ok := p.PriceChangePercent(); ok {
			values = append(values, math.Abs(pct))
		}
	}
	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// Split counts the directions of a round's public predictions. It is used
// when the backend's own stats are missing.
func Split(preds []model.Prediction) model.DirectionCounts {
	var c model.DirectionCounts
	for _, p := range preds {
		c.Total++
		switch p.Direction {
		case model.DirectionUp:
			c.Up++
		case model.DirectionDown:
			c.Down++
		}
	}
	return c
}

// Package model defines the epoch, round and prediction types shared by the
// poller, the prediction store and the presentation layer.
package model

import (
	"fmt"
	"strings"
)

// RoundStatus is the lifecycle state the backend assigns to a round.
type RoundStatus string

// Round lifecycle states.
const (
	RoundExpired     RoundStatus = "expired"
	RoundActive      RoundStatus = "active"
	RoundNext        RoundStatus = "next"
	RoundLater       RoundStatus = "later"
	RoundCompleted   RoundStatus = "completed"
	RoundCalculating RoundStatus = "calculating"
	RoundLocked      RoundStatus = "locked"
	RoundScheduled   RoundStatus = "scheduled"
)

var knownStatuses = map[RoundStatus]bool{
	RoundExpired:     true,
	RoundActive:      true,
	RoundNext:        true,
	RoundLater:       true,
	RoundCompleted:   true,
	RoundCalculating: true,
	RoundLocked:      true,
	RoundScheduled:   true,
}

// Valid reports whether s is one of the statuses the backend is known to emit.
func (s RoundStatus) Valid() bool {
	return knownStatuses[s]
}

// Label is the upper-case badge text shown next to a round.
func (s RoundStatus) Label() string {
	return strings.ToUpper(string(s))
}

// Epoch is a top-level time window grouping several rounds.
type Epoch struct {
	ID          int64     `json:"id"`
	Status      string    `json:"status"`
	StartTime   Timestamp `json:"start_time"`
	EndTime     Timestamp `json:"end_time"`
	LockStart   Timestamp `json:"lock_start"`
	LockEnd     Timestamp `json:"lock_end"`
	Baseline    float64   `json:"baseline"`
	TotalSupply float64   `json:"total_supply"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

// Round is a short prediction window inside an epoch.
type Round struct {
	ID            int64       `json:"id"`
	EpochID       int64       `json:"epoch_id"`
	Status        RoundStatus `json:"status"`
	StartingPrice float64     `json:"starting_price"`
	EndingPrice   float64     `json:"ending_price"`
	StartTime     Timestamp   `json:"start_time"`
	EndTime       Timestamp   `json:"end_time"`
	LockStart     Timestamp   `json:"lock_start"`
	LockEnd       Timestamp   `json:"lock_end"`
}

// CanPredict reports whether predictions are accepted for the round.
func (r Round) CanPredict() bool {
	return r.Status == RoundActive
}

// IsRelevant reports whether the round is a candidate for the round the user
// should currently look at.
func (r Round) IsRelevant() bool {
	switch r.Status {
	case RoundActive, RoundCalculating, RoundLocked:
		return true
	default:
		return false
	}
}

// IsCompleted reports whether the round has settled and its ending price is final.
func (r Round) IsCompleted() bool {
	return r.Status == RoundCompleted
}

// HasEndingPrice is true once settlement populated the ending price.
func (r Round) HasEndingPrice() bool {
	return r.EndingPrice > 0
}

// PriceChangePercent returns the move of current relative to the starting
// price, in percent. It returns false when the starting price is unset.
func (r Round) PriceChangePercent(current float64) (float64, bool) {
	if r.StartingPrice == 0 {
		return 0, false
	}
	return (current - r.StartingPrice) / r.StartingPrice * 100, true
}

// Direction is the user's call on the price move of a round.
type Direction string

// Prediction directions.
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection validates a direction typed by a user or sent by a UI.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be %q or %q, got %q", DirectionUp, DirectionDown, s)
	}
}

// PredictionMessage is the canonical text a wallet signs for a prediction.
// The backend rebuilds the same string to verify the signature, so the
// format must not change.
func PredictionMessage(direction Direction, roundID int64) string {
	return fmt.Sprintf("Predict %s for round %d", direction, roundID)
}

package model

// Prediction is the signed payload posted to the backend.
type Prediction struct {
	Address   string    `json:"address"`
	RoundID   int64     `json:"round_id"`
	Direction Direction `json:"direction"`
	Signature string    `json:"signature"`
}

// Result labels shown for a settled prediction.
const (
	OutcomeWin         = "WIN"
	OutcomeLoss        = "LOSS"
	OutcomeCalculating = "CALCULATING"
)

// PredictionWithDetails is a prediction enriched server-side with the
// settlement data of its round.
type PredictionWithDetails struct {
	Prediction
	CreatedAt     Timestamp   `json:"created_at"`
	StartingPrice float64     `json:"starting_price"`
	EndingPrice   float64     `json:"ending_price"`
	IsCorrect     int         `json:"is_correct"`
	RoundStatus   RoundStatus `json:"round_status"`
	EpochID       int64       `json:"epoch_id"`
}

// IsCompleted reports whether price change and win/loss are meaningful.
func (p PredictionWithDetails) IsCompleted() bool {
	return p.RoundStatus == RoundCompleted
}

// Correct reports the settlement flag. Only meaningful once completed.
func (p PredictionWithDetails) Correct() bool {
	return p.IsCorrect != 0
}

// PriceChange is the absolute move between starting and ending price.
// The second value is false until the round has completed.
func (p PredictionWithDetails) PriceChange() (float64, bool) {
	if !p.IsCompleted() {
		return 0, false
	}
	return p.EndingPrice - p.StartingPrice, true
}

// PriceChangePercent is PriceChange relative to the starting price.
func (p PredictionWithDetails) PriceChangePercent() (float64, bool) {
	change, ok := p.PriceChange()
	if !ok || p.StartingPrice == 0 {
		return 0, false
	}
	return change / p.StartingPrice * 100, true
}

// Outcome returns the result badge for the prediction, or "" while the
// round is still open.
func (p PredictionWithDetails) Outcome() string {
	switch {
	case p.IsCompleted() && p.Correct():
		return OutcomeWin
	case p.IsCompleted():
		return OutcomeLoss
	case p.RoundStatus == RoundCalculating:
		return OutcomeCalculating
	default:
		return ""
	}
}

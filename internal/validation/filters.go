// Package validation provides sanity filters for backend data and checks for
// user-entered amounts.
package validation

import (
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/model"
)

// FilterRounds drops rounds that cannot be displayed or acted on: non-positive
// ids, statuses the client does not know, and rounds that claim to belong to
// a different epoch than the one requested. When an id appears more than once
// the last occurrence wins. Input order is otherwise preserved.
func FilterRounds(rounds []model.Round, epochID int64) []model.Round {
	if len(rounds) == 0 {
		return nil
	}

	index := make(map[int64]int, len(rounds))
	valid := make([]model.Round, 0, len(rounds))
	for _, r := range rounds {
		if !isValidRound(r, epochID) {
			logrus.WithFields(logrus.Fields{
				"round":  r.ID,
				"epoch":  r.EpochID,
				"status": r.Status,
			}).Debug("Filtered invalid round")
			continue
		}
		if i, seen := index[r.ID]; seen {
			valid[i] = r
			continue
		}
		index[r.ID] = len(valid)
		valid = append(valid, r)
	}
	return valid
}

// isValidRound checks if a single round meets all validation criteria
func isValidRound(r model.Round, epochID int64) bool {
	if r.ID <= 0 {
		return false
	}
	if !r.Status.Valid() {
		return false
	}
	// epoch_id 0 means the backend omitted it
	if r.EpochID != 0 && epochID != 0 && r.EpochID != epochID {
		return false
	}
	if r.StartingPrice < 0 || r.EndingPrice < 0 {
		return false
	}
	return true
}

// FilterPredictions drops entries without a round id or with an unknown
// direction.
func FilterPredictions(preds []model.PredictionWithDetails) []model.PredictionWithDetails {
	valid := make([]model.PredictionWithDetails, 0, len(preds))
	for _, p := range preds {
		if p.RoundID <= 0 {
			continue
		}
		if p.Direction != model.DirectionUp && p.Direction != model.DirectionDown {
			logrus.WithFields(logrus.Fields{
				"round":     p.RoundID,
				"direction": p.Direction,
			}).Debug("Filtered prediction with unknown direction")
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

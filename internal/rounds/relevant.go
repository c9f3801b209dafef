package rounds

import (
	"sort"

	"github.com/yourorg/predictpool-client/internal/model"
)

// statusRank orders the statuses that can make a round relevant. Lower wins.
var statusRank = map[model.RoundStatus]int{
	model.RoundActive:      0,
	model.RoundLocked:      1,
	model.RoundCalculating: 2,
}

// SelectRelevant returns the round the user should look at: an active round
// first, then a locked one, then one being calculated. Ties go to the lowest
// round id. It returns nil when no round qualifies.
func SelectRelevant(rounds []model.Round) *model.Round {
	var best *model.Round
	bestRank := len(statusRank)
	for i := range rounds {
		rank, ok := statusRank[rounds[i].Status]
		if !ok {
			continue
		}
		if best == nil || rank < bestRank || (rank == bestRank && rounds[i].ID < best.ID) {
			r := rounds[i]
			best = &r
			bestRank = rank
		}
	}
	return best
}

// SortByID returns a copy of rounds in ascending id order.
func SortByID(rounds []model.Round) []model.Round {
	out := make([]model.Round, len(rounds))
	copy(out, rounds)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

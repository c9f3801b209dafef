package model

// UserStats is the per-epoch performance record the backend keeps for a user.
type UserStats struct {
	UserAddress        string  `json:"user_address"`
	EpochID            int64   `json:"epoch_id"`
	CorrectPredictions int     `json:"correct_predictions"`
	TotalPredictions   int     `json:"total_predictions"`
	Weight             float64 `json:"weight"`
	Accuracy           float64 `json:"accuracy"`
	Balance            float64 `json:"balance,omitempty"`
	ContractWeight     float64 `json:"contract_weight,omitempty"`
}

// LeaderboardEntry is one row of an epoch leaderboard.
type LeaderboardEntry struct {
	UserAddress        string  `json:"user_address"`
	EpochID            int64   `json:"epoch_id"`
	CorrectPredictions int     `json:"correct_predictions"`
	TotalPredictions   int     `json:"total_predictions"`
	Accuracy           float64 `json:"accuracy"`
	Weight             float64 `json:"weight"`
}

// ContractInfo mirrors the vault figures the backend reads from the chain.
type ContractInfo struct {
	TotalMON         float64 `json:"total_mon"`
	EpochBaseline    float64 `json:"epoch_baseline"`
	EpochTotalSupply float64 `json:"epoch_total_supply"`
}

// DirectionCounts summarises how a round's predictions are split.
type DirectionCounts struct {
	Total int `json:"total"`
	Up    int `json:"up"`
	Down  int `json:"down"`
}

// RoundPredictions is the public view of every prediction made on a round.
type RoundPredictions struct {
	Predictions []Prediction    `json:"predictions"`
	Stats       DirectionCounts `json:"stats"`
}

// HealthStatus is the backend liveness payload. Timestamp is the backend's
// local ISO-8601 time and is kept verbatim.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// OK reports whether the backend declared itself healthy.
func (h HealthStatus) OK() bool {
	return h.Status == "ok"
}

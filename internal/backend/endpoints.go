package backend

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/yourorg/predictpool-client/internal/model"
)

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (model.HealthStatus, error) {
	var h model.HealthStatus
	if err := c.getJSON(ctx, "health", "/api/health", &h); err != nil {
		return model.HealthStatus{}, err
	}
	return h, nil
}

// CurrentEpoch returns the epoch the backend considers current. It returns
// an error wrapping model.ErrNotFound when no epoch is running.
func (c *Client) CurrentEpoch(ctx context.Context) (model.Epoch, error) {
	var e model.Epoch
	if err := c.getJSON(ctx, "epochs_current", "/api/epochs/current", &e); err != nil {
		return model.Epoch{}, err
	}
	return e, nil
}

// Epoch returns a single epoch by id.
func (c *Client) Epoch(ctx context.Context, id int64) (model.Epoch, error) {
	var e model.Epoch
	if err := c.getJSON(ctx, "epoch", fmt.Sprintf("/api/epochs/%d", id), &e); err != nil {
		return model.Epoch{}, err
	}
	return e, nil
}

// EpochRounds returns the rounds of an epoch in the order the backend sent them.
func (c *Client) EpochRounds(ctx context.Context, epochID int64) ([]model.Round, error) {
	var rounds []model.Round
	if err := c.getJSON(ctx, "epoch_rounds", fmt.Sprintf("/api/epochs/%d/rounds", epochID), &rounds); err != nil {
		return nil, err
	}
	return rounds, nil
}

// UserPredictions returns every prediction the address made, enriched with
// round settlement data.
func (c *Client) UserPredictions(ctx context.Context, address string) ([]model.PredictionWithDetails, error) {
	var preds []model.PredictionWithDetails
	path := fmt.Sprintf("/api/users/%s/predictions", url.PathEscape(address))
	if err := c.getJSON(ctx, "user_predictions", path, &preds); err != nil {
		return nil, err
	}
	return preds, nil
}

// SubmitResponse is the backend acknowledgement of a stored prediction.
type SubmitResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// SubmitPrediction posts a signed prediction. The request is attempted once.
// A 403 is returned as *model.IneligibleError carrying the backend's reason.
func (c *Client) SubmitPrediction(ctx context.Context, p model.Prediction) (SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.postJSON(ctx, "predictions_submit", "/api/predictionsv2", p, &resp); err != nil {
		return SubmitResponse{}, err
	}
	return resp, nil
}

// UserStats returns the address' stats for epochID, or for the current epoch
// when epochID is 0.
func (c *Client) UserStats(ctx context.Context, address string, epochID int64) (model.UserStats, error) {
	path := fmt.Sprintf("/api/users/%s/stats", url.PathEscape(address))
	if epochID > 0 {
		path = fmt.Sprintf("%s/%d", path, epochID)
	}
	var s model.UserStats
	if err := c.getJSON(ctx, "user_stats", path, &s); err != nil {
		return model.UserStats{}, err
	}
	return s, nil
}

// Leaderboard returns the leaderboard of epochID, or of the current epoch
// when epochID is 0. Entries are ordered by weight, highest first.
func (c *Client) Leaderboard(ctx context.Context, epochID int64) ([]model.LeaderboardEntry, error) {
	path := "/api/leaderboard"
	if epochID > 0 {
		path = fmt.Sprintf("%s/%d", path, epochID)
	}
	var entries []model.LeaderboardEntry
	if err := c.getJSON(ctx, "leaderboard", path, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Weight > entries[j].Weight })
	return entries, nil
}

// ContractInfo returns the vault figures the backend reads from the chain.
func (c *Client) ContractInfo(ctx context.Context) (model.ContractInfo, error) {
	var info model.ContractInfo
	if err := c.getJSON(ctx, "contract_info", "/api/contract/info", &info); err != nil {
		return model.ContractInfo{}, err
	}
	return info, nil
}

// RoundPredictions returns every prediction on a round with up/down counts.
func (c *Client) RoundPredictions(ctx context.Context, roundID int64) (model.RoundPredictions, error) {
	var rp model.RoundPredictions
	if err := c.getJSON(ctx, "round_predictions", fmt.Sprintf("/api/rounds/%d/predictions", roundID), &rp); err != nil {
		return model.RoundPredictions{}, err
	}
	return rp, nil
}

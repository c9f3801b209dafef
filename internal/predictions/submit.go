package predictions

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/model"
)

// Outcome classifies the result of a submission attempt.
type Outcome string

// Submission outcomes.
const (
	OutcomeSuccess           Outcome = "success"
	OutcomeIneligible        Outcome = "ineligible"
	OutcomeTransientFailure  Outcome = "transient_failure"
	OutcomeSignatureRejected Outcome = "signature_rejected"
	OutcomeAlreadyPredicted  Outcome = "already_predicted"
	OutcomeNoWallet          Outcome = "no_wallet"
	OutcomeRoundNotActive    Outcome = "round_not_active"
)

// User-facing texts.
const (
	MessageTransient   = "Prediction could not be submitted, try again"
	MessageRejected    = "Signature request was rejected"
	MessageDuplicate   = "You already made a prediction for this round"
	MessageNoWallet    = "Connect a wallet to make predictions"
	MessageNotActive   = "This round is not accepting predictions"
	HintStakeToPredict = "Stake MON before an epoch starts to become eligible for its rounds"
)

// Result is returned by every Submit call.
type Result struct {
	Outcome Outcome `json:"outcome"`
	RoundID int64   `json:"round_id"`
	// Reason carries the backend's explanation for ineligible outcomes.
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// OK reports whether the prediction was stored.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Notice is the persistent message shown after a failed attempt. It stays
// until the next attempt starts.
type Notice struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
	Hint    string  `json:"hint,omitempty"`
}

func noticeFor(r Result) *Notice {
	switch r.Outcome {
	case OutcomeIneligible:
		return &Notice{Outcome: r.Outcome, Message: r.Reason, Hint: HintStakeToPredict}
	case OutcomeTransientFailure:
		return &Notice{Outcome: r.Outcome, Message: MessageTransient}
	case OutcomeSignatureRejected:
		return &Notice{Outcome: r.Outcome, Message: MessageRejected}
	case OutcomeAlreadyPredicted:
		return &Notice{Outcome: r.Outcome, Message: MessageDuplicate}
	case OutcomeNoWallet:
		return &Notice{Outcome: r.Outcome, Message: MessageNoWallet}
	case OutcomeRoundNotActive:
		return &Notice{Outcome: r.Outcome, Message: MessageNotActive}
	default:
		return nil
	}
}

// Submit signs and posts a prediction for roundID, which must be active in
// the last round list passed to ObserveRounds. It waits for the wallet
// signature without a timeout of its own; cancel ctx to abandon it. On
// success the whole map is refetched.
func (s *Store) Submit(ctx context.Context, direction model.Direction, roundID int64) Result {
	res := s.submit(ctx, direction, roundID)

	s.mu.Lock()
	s.notice = noticeFor(res)
	s.mu.Unlock()

	s.metrics.Submission(string(res.Outcome))
	entry := s.log.WithFields(logrus.Fields{
		"round":     roundID,
		"direction": direction,
		"outcome":   res.Outcome,
	})
	switch res.Outcome {
	case OutcomeSuccess:
		entry.Info("Prediction submitted")
	case OutcomeTransientFailure:
		entry.WithError(res.Err).Error("Prediction submission failed")
	case OutcomeIneligible:
		entry.WithField("reason", res.Reason).Warn("Prediction refused, wallet not eligible")
	default:
		entry.WithError(res.Err).Warn("Prediction not submitted")
	}
	s.notify()
	return res
}

func (s *Store) submit(ctx context.Context, direction model.Direction, roundID int64) Result {
	res := Result{RoundID: roundID}

	s.mu.Lock()
	s.notice = nil
	addr := s.wallet.Address()
	if addr == "" {
		s.mu.Unlock()
		res.Outcome, res.Err = OutcomeNoWallet, model.ErrNoWallet
		return res
	}
	if status, known := s.rounds[roundID]; !known || status != model.RoundActive {
		s.mu.Unlock()
		res.Outcome, res.Err = OutcomeRoundNotActive, model.ErrRoundNotActive
		return res
	}
	if _, exists := s.predictions[roundID]; exists || s.pending[roundID] {
		s.mu.Unlock()
		res.Outcome, res.Err = OutcomeAlreadyPredicted, model.ErrAlreadyPredicted
		return res
	}
	s.pending[roundID] = true
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		delete(s.pending, roundID)
		s.mu.Unlock()
	}()

	sig, err := s.wallet.SignMessage(ctx, model.PredictionMessage(direction, roundID))
	if err != nil {
		res.Err = err
		if errors.Is(err, model.ErrNoWallet) {
			res.Outcome = OutcomeNoWallet
		} else {
			res.Outcome = OutcomeSignatureRejected
		}
		return res
	}

	_, err = s.api.SubmitPrediction(ctx, model.Prediction{
		Address:   addr,
		RoundID:   roundID,
		Direction: direction,
		Signature: sig,
	})
	if err != nil {
		res.Err = err
		var ie *model.IneligibleError
		switch {
		case errors.As(err, &ie):
			res.Outcome, res.Reason = OutcomeIneligible, ie.Reason
		case errors.Is(err, model.ErrAlreadyPredicted):
			res.Outcome = OutcomeAlreadyPredicted
		default:
			res.Outcome = OutcomeTransientFailure
		}
		return res
	}

	res.Outcome = OutcomeSuccess
	if err := s.Fetch(ctx); err != nil {
		s.log.WithError(err).Warn("Prediction stored but refetch failed")
	}
	return res
}

package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoWallet          = errors.New("no wallet connected")
	ErrSignatureRejected = errors.New("signature request rejected")
	ErrAlreadyPredicted  = errors.New("prediction already submitted for this round")
	ErrRoundNotActive    = errors.New("round is not accepting predictions")
)

// DefaultIneligibleReason is shown when a 403 carries no error text.
const DefaultIneligibleReason = "You are not eligible to make predictions"

// IneligibleError is returned when the backend refuses a prediction because
// the wallet is not eligible, typically because nothing was staked before the
// epoch started.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "ineligible: " + e.Reason
}

// StatusError is a non-success response the client has no special handling for.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d, body: %s", e.Method, e.Path, e.Code, e.Body)
}

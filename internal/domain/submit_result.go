package domain

import "encoding/json"

// SubmitResult is the outcome of relaying a submission: exactly one of
// Accepted, NeedsConfirmation or Rejected.
type SubmitResult interface {
	submitResult()
	Outcome() string
}

type Accepted struct {
	Response json.RawMessage
}

// NeedsConfirmation carries the workflow's confirmation indicator verbatim.
// It is the only value Confirm accepts as the prior step.
type NeedsConfirmation struct {
	Message   string
	Indicator json.RawMessage
	Response  json.RawMessage
}

type Rejected struct {
	Status  int
	Message string
	Hint    string
	Code    json.RawMessage
}

func (Accepted) submitResult()          {}
func (NeedsConfirmation) submitResult() {}
func (Rejected) submitResult()          {}

func (Accepted) Outcome() string          { return "accepted" }
func (NeedsConfirmation) Outcome() string { return "needs_confirmation" }
func (Rejected) Outcome() string          { return "rejected" }

package models

import "time"

// TransitionAction names the workflow operation that produced a transition.
type TransitionAction string

const (
	TransitionSubmit              TransitionAction = "SUBMIT"
	TransitionApprove             TransitionAction = "APPROVE"
	TransitionReject              TransitionAction = "REJECT"
	TransitionValidateWithholding TransitionAction = "VALIDATE_WITHHOLDING"
	TransitionRegisterPayment     TransitionAction = "REGISTER_PAYMENT"
	TransitionLegalize            TransitionAction = "LEGALIZE"
)

// TransitionEvent is emitted after a state change has been committed.
type TransitionEvent struct {
	AdvanceID  int64            `json:"advanceId"`
	Action     TransitionAction `json:"action"`
	From       AdvanceState     `json:"from,omitempty"`
	To         AdvanceState     `json:"to"`
	Version    int64            `json:"version"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// Changed reports whether the event moved the advance to a new state.
func (e TransitionEvent) Changed() bool {
	return e.From != e.To
}

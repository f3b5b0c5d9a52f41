package jobs

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates a status change outside the job state
// machine.
var ErrInvalidTransition = errors.New("jobs: invalid status transition")

// transitions lists the legal automatic moves. Requeue (terminal -> Pending)
// is operator-only and checked separately via CanRequeue.
var transitions = map[AssessmentStatus][]AssessmentStatus{
	StatusPending:   {StatusAssessing},
	StatusAssessing: {StatusApproved, StatusRejected, StatusNeedsReview, StatusError},
}

// CanTransition reports whether from -> to is a legal automatic transition.
func CanTransition(from, to AssessmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanRequeue reports whether an operator may reset the job to Pending.
// Assessing jobs cannot be requeued: the status is the executor's lock.
func CanRequeue(from AssessmentStatus) bool {
	return from == StatusPending || from.Terminal()
}

// Transition moves the job through the state machine, rejecting anything
// outside it.
func (j *VerificationJob) Transition(to AssessmentStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

package domain

import (
	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
)

// ReviewStatus is the lifecycle state of a review.
type ReviewStatus string

// Review statuses. Approved and rejected are terminal.
const (
	StatusPendingVerification       ReviewStatus = "pending_verification"
	StatusVerifiedPendingModeration ReviewStatus = "verified_pending_moderation"
	StatusApproved                  ReviewStatus = "approved"
	StatusRejected                  ReviewStatus = "rejected"
)

// Event drives a review from one status to the next.
type Event string

// Lifecycle events.
const (
	EventVerify  Event = "verify"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
)

var transitions = map[ReviewStatus]map[Event]ReviewStatus{
	StatusPendingVerification: {
		EventVerify: StatusVerifiedPendingModeration,
	},
	StatusVerifiedPendingModeration: {
		EventApprove: StatusApproved,
		EventReject:  StatusRejected,
	},
}

// NextStatus returns the status reached from `from` through event, or an
// INVALID_STATE error when the lifecycle does not allow it.
func NextStatus(from ReviewStatus, event Event) (ReviewStatus, error) {
	if next, ok := transitions[from][event]; ok {
		return next, nil
	}
	return "", apperrors.InvalidState(string(from), string(event))
}

// ModerationEvent maps a moderator's decision onto its lifecycle event.
func ModerationEvent(approved bool) Event {
	if approved {
		return EventApprove
	}
	return EventReject
}

// IsTerminal reports whether no further transition is possible from s.
func (s ReviewStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid reports whether s is a known status.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case StatusPendingVerification, StatusVerifiedPendingModeration, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Package status defines the pipeline state machine: the status enum shared
// by jobs and applications, the events that move entities between statuses,
// and the transition table that decides which moves are legal.
package status

import (
	"errors"
	"fmt"
)

// Status is the pipeline position of a job or application.
type Status string

const (
	// Job statuses.
	Scraped          Status = "scraped"
	Qualified        Status = "qualified"
	RejectedByFilter Status = "rejected_by_filter"

	// Application statuses.
	Generating       Status = "generating"
	Ready            Status = "ready"
	FailedValidation Status = "failed_validation"
	PendingReview    Status = "pending_review"
	Authorized       Status = "authorized"
	Submitted        Status = "submitted"
	RejectedByHuman  Status = "rejected_by_human"
	Expired          Status = "expired"
	Ambiguous        Status = "ambiguous"
)

// Event is a trigger that may move an entity to its next status.
type Event string

const (
	EventQualify             Event = "qualify"
	EventRejectFilter        Event = "reject_filter"
	EventStartGeneration     Event = "start_generation"
	EventGenerationSucceeded Event = "generation_succeeded"
	EventGenerationFailed    Event = "generation_failed"
	EventQueueReview         Event = "queue_review"
	EventAuthorize           Event = "authorize"
	EventRejectHuman         Event = "reject_human"
	EventExpire              Event = "expire"
	EventConfirmSubmission   Event = "confirm_submission"
	EventAmbiguousSubmission Event = "ambiguous_submission"
	// EventRetryGeneration is the only regression in the graph. It is
	// operator-initiated and re-enters the machine at qualified.
	EventRetryGeneration Event = "retry_generation"
)

// ErrIllegalTransition is returned when an event is not legal for the
// entity's current status. Callers must treat it as a rejected request,
// never as a reason to coerce state.
var ErrIllegalTransition = errors.New("illegal status transition")

// transitions is the directed transition graph. Anything absent is illegal.
var transitions = map[Status]map[Event]Status{
	Scraped: {
		EventQualify:      Qualified,
		EventRejectFilter: RejectedByFilter,
	},
	Qualified: {
		EventStartGeneration: Generating,
	},
	Generating: {
		EventGenerationSucceeded: Ready,
		EventGenerationFailed:    FailedValidation,
	},
	Ready: {
		EventQueueReview:      PendingReview,
		EventGenerationFailed: FailedValidation,
	},
	FailedValidation: {
		EventRetryGeneration: Qualified,
	},
	PendingReview: {
		EventAuthorize:   Authorized,
		EventRejectHuman: RejectedByHuman,
		EventExpire:      Expired,
	},
	Authorized: {
		EventConfirmSubmission:   Submitted,
		EventAmbiguousSubmission: Ambiguous,
	},
}

// Next returns the status an entity moves to when event fires in current.
// It returns ErrIllegalTransition (wrapped with both statuses) when the
// transition graph has no such edge.
func Next(current Status, event Event) (Status, error) {
	if edges, ok := transitions[current]; ok {
		if next, ok := edges[event]; ok {
			return next, nil
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, current)
}

// CanTransition reports whether event is legal for current.
func CanTransition(current Status, event Event) bool {
	_, err := Next(current, event)
	return err == nil
}

// Terminal reports whether a status has no outgoing edges other than the
// explicit operator retry. Expired, rejected and submitted rows never move
// again on their own.
func Terminal(s Status) bool {
	switch s {
	case RejectedByFilter, RejectedByHuman, Submitted, Expired, Ambiguous:
		return true
	case FailedValidation:
		// Terminal unless an operator retries explicitly.
		return true
	}
	return false
}

// Valid reports whether s is a known pipeline status.
func Valid(s Status) bool {
	switch s {
	case Scraped, Qualified, RejectedByFilter, Generating, Ready,
		FailedValidation, PendingReview, Authorized, Submitted,
		RejectedByHuman, Expired, Ambiguous:
		return true
	}
	return false
}

// Package application owns the application state machine and the intake side
// of the pipeline: creating applications, auto-apply, external status
// advancement, notes and statistics.
//
// Valid status graph:
//
//	pending ──► applied ──► viewed ──► interview ──► offer
//	   │           │           │            │
//	   └───────────┴───────────┴────────────┴──► rejected
//
// offer and rejected are terminal. Leaving pending is reserved to the
// processing run; every later edge is driven externally.
package application

import (
	"fmt"

	"jobmate/autoapply-service/internal/model"
)

var validTransitions = map[model.ApplicationStatus][]model.ApplicationStatus{
	model.StatusPending:   {model.StatusApplied, model.StatusRejected},
	model.StatusApplied:   {model.StatusViewed, model.StatusRejected},
	model.StatusViewed:    {model.StatusInterview, model.StatusRejected},
	model.StatusInterview: {model.StatusOffer, model.StatusRejected},
}

// ParseStatus converts a raw string to an ApplicationStatus. Values are
// case-sensitive.
func ParseStatus(s string) (model.ApplicationStatus, error) {
	st := model.ApplicationStatus(s)
	switch st {
	case model.StatusPending, model.StatusApplied, model.StatusViewed,
		model.StatusInterview, model.StatusOffer, model.StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed reports whether from → to is an edge of the graph.
func IsTransitionAllowed(from, to model.ApplicationStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s model.ApplicationStatus) bool {
	_, ok := validTransitions[s]
	return !ok
}

// IsSuccess reports whether s counts towards the success rate.
func IsSuccess(s model.ApplicationStatus) bool {
	return s == model.StatusInterview || s == model.StatusOffer
}

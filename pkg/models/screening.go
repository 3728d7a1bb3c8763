package models

import (
	"time"

	"github.com/google/uuid"
)

// ScreeningState is the lifecycle state of a screening case.
// State machine:
//
//	pending → ai_analyzed → under_review → completed
//
//	cancelled is reachable from pending, ai_analyzed, and under_review.
//	completed and cancelled are terminal; a completed case can only be
//	reopened through the explicit, audited reopen action.
type ScreeningState string

const (
	ScreeningStatePending     ScreeningState = "pending"
	ScreeningStateAIAnalyzed  ScreeningState = "ai_analyzed"
	ScreeningStateUnderReview ScreeningState = "under_review"
	ScreeningStateCompleted   ScreeningState = "completed"
	ScreeningStateCancelled   ScreeningState = "cancelled"
)

// ValidScreeningStates contains all valid state values.
var ValidScreeningStates = []ScreeningState{
	ScreeningStatePending,
	ScreeningStateAIAnalyzed,
	ScreeningStateUnderReview,
	ScreeningStateCompleted,
	ScreeningStateCancelled,
}

// IsValidScreeningState checks if the given state is valid.
func IsValidScreeningState(s ScreeningState) bool {
	for _, v := range ValidScreeningStates {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state is terminal (completed or cancelled).
func (s ScreeningState) IsTerminal() bool {
	return s == ScreeningStateCompleted || s == ScreeningStateCancelled
}

// CanTransitionTo returns true if transitioning from this state to the target
// is valid. The table is exhaustive; anything not listed is rejected.
func (s ScreeningState) CanTransitionTo(target ScreeningState) bool {
	switch s {
	case ScreeningStatePending:
		return target == ScreeningStateAIAnalyzed || target == ScreeningStateCancelled
	case ScreeningStateAIAnalyzed:
		return target == ScreeningStateUnderReview || target == ScreeningStateCancelled
	case ScreeningStateUnderReview:
		return target == ScreeningStateCompleted || target == ScreeningStateCancelled
	case ScreeningStateCompleted, ScreeningStateCancelled:
		return false
	default:
		return false
	}
}

// AllowsAnalysis returns true if an AI analysis run may be started in this
// state. Re-analysis of an already-analyzed case is permitted; anything past
// review is not.
func (s ScreeningState) AllowsAnalysis() bool {
	return s == ScreeningStatePending || s == ScreeningStateAIAnalyzed
}

// Case is a patient's screening episode, tracked end to end. A case owns its
// samples and is never physically deleted while audit history references it;
// archival is a soft flag.
type Case struct {
	ID         uuid.UUID      `json:"id"`
	PatientID  uuid.UUID      `json:"patient_id"`
	State      ScreeningState `json:"state"`
	Reason     string         `json:"reason,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Version    int64          `json:"version"`
	ArchivedAt *time.Time     `json:"archived_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IsArchived returns true if the case has been archived.
func (c *Case) IsArchived() bool {
	return c.ArchivedAt != nil
}

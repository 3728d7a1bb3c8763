package models

import (
	"time"

	"github.com/google/uuid"
)

// SampleState tracks a specimen through processing.
// State machine:
//
//	pending → analyzed → reviewed
//
// rejected is reachable from pending only (unusable specimen).
type SampleState string

const (
	SampleStatePending  SampleState = "pending"
	SampleStateAnalyzed SampleState = "analyzed"
	SampleStateReviewed SampleState = "reviewed"
	SampleStateRejected SampleState = "rejected"
)

// CanTransitionTo returns true if transitioning from this state to the target
// is valid.
func (s SampleState) CanTransitionTo(target SampleState) bool {
	switch s {
	case SampleStatePending:
		return target == SampleStateAnalyzed || target == SampleStateRejected
	case SampleStateAnalyzed:
		// Re-analysis keeps the sample analyzed; review closes it out.
		return target == SampleStateAnalyzed || target == SampleStateReviewed
	case SampleStateReviewed, SampleStateRejected:
		return false
	default:
		return false
	}
}

// Sample is a specimen collected under a case. One sample yields at most one
// active AIResult per analysis run; re-analysis creates a new AIResult.
type Sample struct {
	ID           uuid.UUID   `json:"id"`
	CaseID       uuid.UUID   `json:"case_id"`
	CollectedAt  time.Time   `json:"collected_at"`
	SampleType   string      `json:"sample_type,omitempty"` // e.g. "pap_smear", "colposcopy"
	State        SampleState `json:"state"`
	ArtifactRef  string      `json:"artifact_ref,omitempty"` // opaque handle to the imaging input
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasArtifact returns true if the sample carries an input artifact reference.
// Analysis cannot run without one.
func (s *Sample) HasArtifact() bool {
	return s.ArtifactRef != ""
}

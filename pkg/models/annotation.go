package models

import (
	"time"

	"github.com/google/uuid"
)

// OverrideFlag is a named clinician override with its stated reason.
// The flag set is open-ended; reasons are free text.
type OverrideFlag struct {
	Set    bool   `json:"set"`
	Reason string `json:"reason,omitempty"`
}

// Annotation is a clinician's recorded judgment on an AIResult, including the
// mandatory sign-off. Once signed off the record is immutable; any correction
// requires a new annotation.
type Annotation struct {
	ID                  uuid.UUID               `json:"id"`
	ResultID            uuid.UUID               `json:"result_id"`
	ClinicianID         uuid.UUID               `json:"clinician_id"`
	AgreesWithAI        *bool                   `json:"agrees_with_ai,omitempty"`
	ClinicianDiagnosis  DiagnosisCategory       `json:"clinician_diagnosis,omitempty"`
	Notes               string                  `json:"notes,omitempty"`
	OverrideFlags       map[string]OverrideFlag `json:"override_flags,omitempty"`
	FollowUpRecommended bool                    `json:"follow_up_recommended"`
	FollowUpNotes       string                  `json:"follow_up_notes,omitempty"`
	SignedOff           bool                    `json:"signed_off"`
	SignedOffAt         *time.Time              `json:"signed_off_at,omitempty"`
	Version             int64                   `json:"version"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// SignOff marks the annotation as signed. Returns false if it was already
// signed (the record is unchanged in that case).
func (a *Annotation) SignOff(at time.Time) bool {
	if a.SignedOff {
		return false
	}
	a.SignedOff = true
	a.SignedOffAt = &at
	return true
}

// Editable returns true while the annotation can still be changed.
func (a *Annotation) Editable() bool {
	return !a.SignedOff
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the minimal patient reference the workflow core needs: an
// identity and the consent state that gates case intake. Demographics live in
// the patient-management system upstream.
type Patient struct {
	ID                  uuid.UUID  `json:"id"`
	MedicalRecordNumber string     `json:"medical_record_number"`
	ConsentGiven        bool       `json:"consent_given"`
	ConsentAt           *time.Time `json:"consent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

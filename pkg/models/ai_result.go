package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// confidenceSumTolerance absorbs floating-point rounding when validating that
// per-label confidences sum to at most 1.
const confidenceSumTolerance = 1e-6

// LabelScore pairs a diagnosis category with the model's confidence in it.
type LabelScore struct {
	Label      DiagnosisCategory `json:"label"`
	Confidence float64           `json:"confidence"`
}

// AIResult is the immutable output of one AI scoring run on a sample.
// Once created it is never mutated; re-analysis creates a new result.
type AIResult struct {
	ID                uuid.UUID         `json:"id"`
	SampleID          uuid.UUID         `json:"sample_id"`
	PrimaryLabel      DiagnosisCategory `json:"primary_label"`
	PrimaryConfidence float64           `json:"primary_confidence"`
	Scores            []LabelScore      `json:"scores"`
	ExplainabilityRef string            `json:"explainability_ref,omitempty"` // opaque heatmap handle
	ModelName         string            `json:"model_name"`
	ModelVersion      string            `json:"model_version"`
	Notes             string            `json:"notes,omitempty"`
	FlaggedForReview  bool              `json:"flagged_for_review"`
	CreatedAt         time.Time         `json:"created_at"`
}

// NewAIResult validates the scored labels and constructs a result with the
// primary label selected. Exactly one label is primary: the highest
// confidence, with exact ties broken toward the more severe category.
func NewAIResult(sampleID uuid.UUID, scores []LabelScore, explainabilityRef, modelName, modelVersion string) (*AIResult, error) {
	if err := ValidateScores(scores); err != nil {
		return nil, err
	}

	primary := SelectPrimaryLabel(scores)

	return &AIResult{
		ID:                uuid.New(),
		SampleID:          sampleID,
		PrimaryLabel:      primary.Label,
		PrimaryConfidence: primary.Confidence,
		Scores:            scores,
		ExplainabilityRef: explainabilityRef,
		ModelName:         modelName,
		ModelVersion:      modelVersion,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// ValidateScores checks the confidence-map invariants: a non-empty fixed
// label set, every confidence in [0,1], and a total of at most 1 within
// rounding tolerance.
func ValidateScores(scores []LabelScore) error {
	if len(scores) == 0 {
		return fmt.Errorf("scores must not be empty")
	}

	seen := make(map[DiagnosisCategory]bool, len(scores))
	var sum float64
	for _, s := range scores {
		if !s.Label.IsValid() {
			return fmt.Errorf("unknown diagnosis category %q", s.Label)
		}
		if seen[s.Label] {
			return fmt.Errorf("duplicate diagnosis category %q", s.Label)
		}
		seen[s.Label] = true

		if s.Confidence < 0 || s.Confidence > 1 {
			return fmt.Errorf("confidence for %q out of range: %f", s.Label, s.Confidence)
		}
		sum += s.Confidence
	}

	if sum > 1+confidenceSumTolerance {
		return fmt.Errorf("confidence values sum to %f, exceeding 1", sum)
	}
	return nil
}

// SelectPrimaryLabel picks the label with maximum confidence. Exact ties are
// broken by the fixed clinical-severity ordering, most severe first: the
// conservative reading is the deliberate policy for a triage system.
func SelectPrimaryLabel(scores []LabelScore) LabelScore {
	primary := scores[0]
	for _, s := range scores[1:] {
		if s.Confidence > primary.Confidence {
			primary = s
			continue
		}
		if s.Confidence == primary.Confidence && s.Label.MoreSevereThan(primary.Label) {
			primary = s
		}
	}
	return primary
}

// TopScores returns the n highest-confidence labels, ordered by confidence
// descending with severity as tie-break.
func (r *AIResult) TopScores(n int) []LabelScore {
	sorted := make([]LabelScore, len(r.Scores))
	copy(sorted, r.Scores)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Confidence > sorted[i].Confidence ||
				(sorted[j].Confidence == sorted[i].Confidence && sorted[j].Label.MoreSevereThan(sorted[i].Label)) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

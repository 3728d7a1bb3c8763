package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestSelectPrimaryLabelHighestConfidence(t *testing.T) {
	scores := []LabelScore{
		{Label: CategoryNILM, Confidence: 0.2},
		{Label: CategoryHSIL, Confidence: 0.7},
		{Label: CategoryLSIL, Confidence: 0.1},
	}
	primary := SelectPrimaryLabel(scores)
	if primary.Label != CategoryHSIL {
		t.Errorf("primary = %s, want hsil", primary.Label)
	}
}

func TestSelectPrimaryLabelTieBreaksTowardSevere(t *testing.T) {
	tests := []struct {
		a, b DiagnosisCategory
		want DiagnosisCategory
	}{
		{CategoryNILM, CategoryHSIL, CategoryHSIL},
		{CategoryLSIL, CategoryASCH, CategoryASCH},
		{CategorySCC, CategoryAdenocarcinoma, CategoryAdenocarcinoma},
		{CategoryUnsatisfactory, CategoryNILM, CategoryUnsatisfactory},
	}

	for _, tt := range tests {
		// Tie-break must be order-independent: try both orderings, and
		// repeat to catch any nondeterminism.
		for run := 0; run < 10; run++ {
			got := SelectPrimaryLabel([]LabelScore{
				{Label: tt.a, Confidence: 0.5},
				{Label: tt.b, Confidence: 0.5},
			})
			if got.Label != tt.want {
				t.Fatalf("tie %s vs %s: got %s, want %s", tt.a, tt.b, got.Label, tt.want)
			}
			got = SelectPrimaryLabel([]LabelScore{
				{Label: tt.b, Confidence: 0.5},
				{Label: tt.a, Confidence: 0.5},
			})
			if got.Label != tt.want {
				t.Fatalf("tie %s vs %s (reversed): got %s, want %s", tt.b, tt.a, got.Label, tt.want)
			}
		}
	}
}

func TestValidateScores(t *testing.T) {
	tests := []struct {
		name    string
		scores  []LabelScore
		wantErr bool
	}{
		{"valid", []LabelScore{{CategoryHSIL, 0.7}, {CategoryNILM, 0.3}}, false},
		{"empty", nil, true},
		{"unknown label", []LabelScore{{"cin3", 0.5}}, true},
		{"duplicate label", []LabelScore{{CategoryHSIL, 0.4}, {CategoryHSIL, 0.4}}, true},
		{"negative confidence", []LabelScore{{CategoryHSIL, -0.1}}, true},
		{"confidence above one", []LabelScore{{CategoryHSIL, 1.1}}, true},
		{"sum above one", []LabelScore{{CategoryHSIL, 0.7}, {CategoryNILM, 0.7}}, true},
		{"sum within tolerance", []LabelScore{{CategoryHSIL, 0.5}, {CategoryNILM, 0.5000005}}, false},
		{"single full confidence", []LabelScore{{CategoryHSIL, 1.0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScores(tt.scores)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewAIResultSelectsPrimary(t *testing.T) {
	result, err := NewAIResult(uuid.New(), []LabelScore{
		{Label: CategoryLSIL, Confidence: 0.3},
		{Label: CategoryHSIL, Confidence: 0.6},
		{Label: CategoryNILM, Confidence: 0.1},
	}, "s3://explain/x", "cyto-net", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PrimaryLabel != CategoryHSIL || result.PrimaryConfidence != 0.6 {
		t.Errorf("primary = %s/%f, want hsil/0.6", result.PrimaryLabel, result.PrimaryConfidence)
	}
}

func TestTopScoresOrdering(t *testing.T) {
	r := &AIResult{Scores: []LabelScore{
		{Label: CategoryNILM, Confidence: 0.1},
		{Label: CategoryHSIL, Confidence: 0.4},
		{Label: CategoryLSIL, Confidence: 0.4},
		{Label: CategoryASCUS, Confidence: 0.1},
	}}

	top := r.TopScores(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(top))
	}
	// 0.4 tie: hsil outranks lsil by severity.
	if top[0].Label != CategoryHSIL || top[1].Label != CategoryLSIL {
		t.Errorf("tie ordering = %s, %s; want hsil, lsil", top[0].Label, top[1].Label)
	}

	if got := r.TopScores(10); len(got) != 4 {
		t.Errorf("oversized n should return all scores, got %d", len(got))
	}
}

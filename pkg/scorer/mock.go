package scorer

import (
	"context"
	"hash/fnv"

	"github.com/cervixai/screening-engine/pkg/models"
)

// Mock is a deterministic in-process scorer for local development and tests.
// The same artifact reference always produces the same prediction.
type Mock struct{}

var _ Scorer = (*Mock)(nil)

// NewMock creates a mock scorer.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Score(_ context.Context, artifactRef string) (*Prediction, error) {
	h := fnv.New32a()
	h.Write([]byte(artifactRef))
	seed := h.Sum32()

	// Rotate the dominant label through the category list so fixtures can
	// exercise both benign and abnormal paths.
	categories := models.DiagnosisCategories
	primary := categories[int(seed)%len(categories)]
	secondary := categories[int(seed>>8)%len(categories)]
	if secondary == primary {
		secondary = categories[(int(seed>>8)+1)%len(categories)]
	}

	dominant := 0.55 + float64(seed%40)/100.0 // between 0.55 and 0.94
	scores := []models.LabelScore{
		{Label: primary, Confidence: dominant},
		{Label: secondary, Confidence: 1.0 - dominant},
	}

	return &Prediction{
		Scores:            scores,
		ExplainabilityRef: "mock://explain/" + artifactRef,
		ModelName:         "mock-cytology",
		ModelVersion:      "0.0.0",
	}, nil
}

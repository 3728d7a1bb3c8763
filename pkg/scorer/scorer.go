// Package scorer talks to the external cytology inference service. The
// rest of the engine depends only on the Scorer interface so tests and
// local development can swap in the mock.
package scorer

import (
	"context"

	"github.com/cervixai/screening-engine/pkg/models"
)

// Prediction is the outcome of scoring one sample artifact.
type Prediction struct {
	Scores            []models.LabelScore
	ExplainabilityRef string
	ModelName         string
	ModelVersion      string
}

// Scorer produces diagnostic predictions for sample artifacts.
type Scorer interface {
	// Score analyzes the artifact behind artifactRef. Unreachable or
	// overloaded upstreams surface as ErrScorerUnavailable; deadline
	// overruns as ErrUpstreamTimeout; artifacts the model rejects as
	// ErrInvalidArtifact.
	Score(ctx context.Context, artifactRef string) (*Prediction, error)
}

package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
)

// Client calls the inference service over HTTP. A circuit breaker sits in
// front of the upstream so a failing model endpoint sheds load quickly
// instead of tying up review traffic in timeouts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

var _ Scorer = (*Client)(nil)

// NewClient creates a scorer client for the given inference endpoint.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "scorer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("scorer circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

type scoreRequest struct {
	ArtifactRef string `json:"artifact_ref"`
}

type scoreResponse struct {
	Scores            map[string]float64 `json:"scores"`
	ExplainabilityRef string             `json:"explainability_ref"`
	ModelName         string             `json:"model_name"`
	ModelVersion      string             `json:"model_version"`
}

func (c *Client) Score(ctx context.Context, artifactRef string) (*Prediction, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.score(ctx, artifactRef)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("scorer circuit open: %w", apperrors.ErrScorerUnavailable)
		}
		return nil, err
	}
	return result.(*Prediction), nil
}

func (c *Client) score(ctx context.Context, artifactRef string) (*Prediction, error) {
	body, err := json.Marshal(scoreRequest{ArtifactRef: artifactRef})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("scorer request timed out: %w", apperrors.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("scorer request failed: %w", apperrors.ErrScorerUnavailable)
	}
	defer resp.Body.Close()

	c.logger.Debug("scorer responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("scorer rejected artifact %q: %w", artifactRef, apperrors.ErrInvalidArtifact)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("scorer upstream timed out: %w", apperrors.ErrUpstreamTimeout)
	default:
		return nil, fmt.Errorf("scorer returned status %d: %w", resp.StatusCode, apperrors.ErrScorerUnavailable)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read scorer response: %w", err)
	}

	var sr scoreResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode scorer response: %w", err)
	}

	scores := make([]models.LabelScore, 0, len(sr.Scores))
	for label, confidence := range sr.Scores {
		scores = append(scores, models.LabelScore{
			Label:      models.DiagnosisCategory(label),
			Confidence: confidence,
		})
	}
	if err := models.ValidateScores(scores); err != nil {
		return nil, fmt.Errorf("scorer returned malformed scores: %w", err)
	}

	return &Prediction{
		Scores:            scores,
		ExplainabilityRef: sr.ExplainabilityRef,
		ModelName:         sr.ModelName,
		ModelVersion:      sr.ModelVersion,
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

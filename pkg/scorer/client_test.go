package scorer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
)

func TestClientScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/score" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"scores": {"hsil": 0.72, "lsil": 0.18, "nilm": 0.10},
			"explainability_ref": "s3://explain/abc",
			"model_name": "cyto-net",
			"model_version": "2.4.1"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	pred, err := client.Score(context.Background(), "s3://artifacts/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pred.Scores) != 3 {
		t.Errorf("expected 3 scores, got %d", len(pred.Scores))
	}
	if pred.ModelName != "cyto-net" || pred.ModelVersion != "2.4.1" {
		t.Errorf("unexpected model identity: %s %s", pred.ModelName, pred.ModelVersion)
	}
	if pred.ExplainabilityRef != "s3://explain/abc" {
		t.Errorf("unexpected explainability ref: %s", pred.ExplainabilityRef)
	}
}

func TestClientScoreInvalidArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	_, err := client.Score(context.Background(), "s3://artifacts/corrupt")
	if !errors.Is(err, apperrors.ErrInvalidArtifact) {
		t.Errorf("expected ErrInvalidArtifact, got %v", err)
	}
}

func TestClientScoreServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	_, err := client.Score(context.Background(), "s3://artifacts/abc")
	if !errors.Is(err, apperrors.ErrScorerUnavailable) {
		t.Errorf("expected ErrScorerUnavailable, got %v", err)
	}
}

func TestClientScoreMalformedScores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Confidences sum well above 1.
		w.Write([]byte(`{"scores": {"hsil": 0.9, "lsil": 0.9}, "model_name": "m", "model_version": "1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	_, err := client.Score(context.Background(), "s3://artifacts/abc")
	if err == nil {
		t.Fatal("expected error for malformed scores")
	}
}

func TestClientCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := client.Score(ctx, "s3://artifacts/abc"); err == nil {
			t.Fatal("expected failure")
		}
	}

	// The breaker should now reject without reaching the server.
	_, err := client.Score(ctx, "s3://artifacts/abc")
	if !errors.Is(err, apperrors.ErrScorerUnavailable) {
		t.Errorf("expected ErrScorerUnavailable from open circuit, got %v", err)
	}
}

func TestMockScoreDeterministic(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	first, err := mock.Score(ctx, "s3://artifacts/slide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := mock.Score(ctx, "s3://artifacts/slide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first.Scores) != len(second.Scores) {
		t.Fatalf("score count mismatch: %d vs %d", len(first.Scores), len(second.Scores))
	}
	for i := range first.Scores {
		if first.Scores[i] != second.Scores[i] {
			t.Errorf("score %d differs between runs", i)
		}
	}
	if err := models.ValidateScores(first.Scores); err != nil {
		t.Errorf("mock produced invalid scores: %v", err)
	}
}

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/models"
)

// ResultRepository provides data access for AI analysis results. Results are
// immutable once written, so the interface has no update method.
type ResultRepository interface {
	Create(ctx context.Context, res *models.AIResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AIResult, error)

	// ListBySample returns a sample's results, newest first. Each re-analysis
	// appends a new row.
	ListBySample(ctx context.Context, sampleID uuid.UUID) ([]*models.AIResult, error)

	// GetLatestBySample returns the most recent result for a sample.
	GetLatestBySample(ctx context.Context, sampleID uuid.UUID) (*models.AIResult, error)
}

type resultRepository struct {
	db *database.DB
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db *database.DB) ResultRepository {
	return &resultRepository{db: db}
}

var _ ResultRepository = (*resultRepository)(nil)

func (r *resultRepository) Create(ctx context.Context, res *models.AIResult) error {
	q := database.QuerierFrom(ctx, r.db)

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.CreatedAt = time.Now().UTC()

	scores, err := json.Marshal(res.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO ai_results (id, sample_id, scores, primary_label, primary_confidence,
			flagged_for_review, notes, explainability_ref, model_name, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, res.SampleID, scores, res.PrimaryLabel, res.PrimaryConfidence,
		res.FlaggedForReview, res.Notes, res.ExplainabilityRef, res.ModelName, res.ModelVersion, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ai result: %w", err)
	}
	return nil
}

func (r *resultRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AIResult, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, resultSelect+` WHERE id = $1`, id)
	res, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "ai_result", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get ai result: %w", err)
	}
	return res, nil
}

func (r *resultRepository) ListBySample(ctx context.Context, sampleID uuid.UUID) ([]*models.AIResult, error) {
	q := database.QuerierFrom(ctx, r.db)

	rows, err := q.Query(ctx, resultSelect+` WHERE sample_id = $1 ORDER BY created_at DESC, id DESC`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai results: %w", err)
	}
	defer rows.Close()

	var results []*models.AIResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ai results: %w", err)
	}
	return results, nil
}

func (r *resultRepository) GetLatestBySample(ctx context.Context, sampleID uuid.UUID) (*models.AIResult, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, resultSelect+` WHERE sample_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, sampleID)
	res, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "ai_result", ID: sampleID.String()}
		}
		return nil, fmt.Errorf("failed to get latest ai result: %w", err)
	}
	return res, nil
}

const resultSelect = `
	SELECT id, sample_id, scores, primary_label, primary_confidence,
		flagged_for_review, notes, explainability_ref, model_name, model_version, created_at
	FROM ai_results`

func scanResult(row pgx.Row) (*models.AIResult, error) {
	var res models.AIResult
	var scores []byte
	err := row.Scan(
		&res.ID, &res.SampleID, &scores, &res.PrimaryLabel, &res.PrimaryConfidence,
		&res.FlaggedForReview, &res.Notes, &res.ExplainabilityRef, &res.ModelName, &res.ModelVersion, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scores, &res.Scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
	}
	return &res, nil
}

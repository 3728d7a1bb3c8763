package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/models"
)

// SampleRepository provides data access for cytology samples.
type SampleRepository interface {
	Create(ctx context.Context, s *models.Sample) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sample, error)

	// Update uses the sample's Version for the optimistic-lock check.
	Update(ctx context.Context, s *models.Sample) error

	// ListByCase returns a case's samples in collection order.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Sample, error)
}

type sampleRepository struct {
	db *database.DB
}

// NewSampleRepository creates a new SampleRepository.
func NewSampleRepository(db *database.DB) SampleRepository {
	return &sampleRepository{db: db}
}

var _ SampleRepository = (*sampleRepository)(nil)

func (r *sampleRepository) Create(ctx context.Context, s *models.Sample) error {
	q := database.QuerierFrom(ctx, r.db)

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Version = 1

	_, err := q.Exec(ctx, `
		INSERT INTO samples (id, case_id, collected_at, sample_type, state, artifact_ref, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.CaseID, s.CollectedAt, s.SampleType, s.State, s.ArtifactRef, s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sample: %w", err)
	}
	return nil
}

func (r *sampleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sample, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, `
		SELECT id, case_id, collected_at, sample_type, state, artifact_ref, version, created_at, updated_at
		FROM samples WHERE id = $1`, id)

	s, err := scanSample(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "sample", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get sample: %w", err)
	}
	return s, nil
}

func (r *sampleRepository) Update(ctx context.Context, s *models.Sample) error {
	q := database.QuerierFrom(ctx, r.db)

	expected := s.Version
	updatedAt := time.Now().UTC()

	tag, err := q.Exec(ctx, `
		UPDATE samples
		SET state = $1, artifact_ref = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		s.State, s.ArtifactRef, updatedAt, s.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update sample: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM samples WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check sample existence: %w", err)
		}
		if !exists {
			return &apperrors.NotFoundError{Entity: "sample", ID: s.ID.String()}
		}
		return &apperrors.ConcurrentModificationError{Entity: "sample", ID: s.ID.String(), ExpectedVersion: expected}
	}

	s.Version = expected + 1
	s.UpdatedAt = updatedAt
	return nil
}

func (r *sampleRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Sample, error) {
	q := database.QuerierFrom(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, case_id, collected_at, sample_type, state, artifact_ref, version, created_at, updated_at
		FROM samples WHERE case_id = $1
		ORDER BY collected_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return samples, nil
}

func scanSample(row pgx.Row) (*models.Sample, error) {
	var s models.Sample
	err := row.Scan(
		&s.ID, &s.CaseID, &s.CollectedAt, &s.SampleType, &s.State,
		&s.ArtifactRef, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

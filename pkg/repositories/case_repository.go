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

// CaseRepository provides data access for screening cases.
type CaseRepository interface {
	// Create inserts a new case.
	Create(ctx context.Context, c *models.Case) error

	// GetByID returns a case by id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)

	// Update writes the case back using its Version as the optimistic-lock
	// check. On success the in-memory Version is advanced. A stale version
	// returns ConcurrentModificationError.
	Update(ctx context.Context, c *models.Case) error

	// ListByPatient returns a patient's cases, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*models.Case, error)
}

type caseRepository struct {
	db *database.DB
}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository(db *database.DB) CaseRepository {
	return &caseRepository{db: db}
}

var _ CaseRepository = (*caseRepository)(nil)

func (r *caseRepository) Create(ctx context.Context, c *models.Case) error {
	q := database.QuerierFrom(ctx, r.db)

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Version = 1

	_, err := q.Exec(ctx, `
		INSERT INTO cases (id, patient_id, state, reason, notes, version, archived_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.PatientID, c.State, c.Reason, c.Notes, c.Version, c.ArchivedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, `
		SELECT id, patient_id, state, reason, notes, version, archived_at, created_at, updated_at
		FROM cases WHERE id = $1`, id)

	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "case", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

func (r *caseRepository) Update(ctx context.Context, c *models.Case) error {
	q := database.QuerierFrom(ctx, r.db)

	expected := c.Version
	updatedAt := time.Now().UTC()

	tag, err := q.Exec(ctx, `
		UPDATE cases
		SET state = $1, reason = $2, notes = $3, archived_at = $4, updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7`,
		c.State, c.Reason, c.Notes, c.ArchivedAt, updatedAt, c.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, c.ID, expected)
	}

	c.Version = expected + 1
	c.UpdatedAt = updatedAt
	return nil
}

// conflictOrMissing distinguishes a stale version from a missing row after a
// zero-row CAS update.
func (r *caseRepository) conflictOrMissing(ctx context.Context, id uuid.UUID, expected int64) error {
	q := database.QuerierFrom(ctx, r.db)

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check case existence: %w", err)
	}
	if !exists {
		return &apperrors.NotFoundError{Entity: "case", ID: id.String()}
	}
	return &apperrors.ConcurrentModificationError{Entity: "case", ID: id.String(), ExpectedVersion: expected}
}

func (r *caseRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*models.Case, error) {
	q := database.QuerierFrom(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, patient_id, state, reason, notes, version, archived_at, created_at, updated_at
		FROM cases WHERE patient_id = $1
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases: %w", err)
	}
	return cases, nil
}

func scanCase(row pgx.Row) (*models.Case, error) {
	var c models.Case
	err := row.Scan(
		&c.ID, &c.PatientID, &c.State, &c.Reason, &c.Notes,
		&c.Version, &c.ArchivedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

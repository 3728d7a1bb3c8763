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

// AnnotationRepository provides data access for clinician annotations.
type AnnotationRepository interface {
	Create(ctx context.Context, a *models.Annotation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Annotation, error)

	// Update uses the annotation's Version for the optimistic-lock check.
	Update(ctx context.Context, a *models.Annotation) error

	// ListByResult returns annotations on a result, oldest first.
	ListByResult(ctx context.Context, resultID uuid.UUID) ([]*models.Annotation, error)

	// ListPendingByClinician returns a clinician's unsigned annotations,
	// oldest first, so the worklist surfaces the longest-waiting reviews.
	ListPendingByClinician(ctx context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error)

	// CountSignedForCase counts signed-off annotations across all results of
	// all samples in a case.
	CountSignedForCase(ctx context.Context, caseID uuid.UUID) (int, error)
}

type annotationRepository struct {
	db *database.DB
}

// NewAnnotationRepository creates a new AnnotationRepository.
func NewAnnotationRepository(db *database.DB) AnnotationRepository {
	return &annotationRepository{db: db}
}

var _ AnnotationRepository = (*annotationRepository)(nil)

func (r *annotationRepository) Create(ctx context.Context, a *models.Annotation) error {
	q := database.QuerierFrom(ctx, r.db)

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 1

	flags, err := marshalOverrideFlags(a.OverrideFlags)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO annotations (id, result_id, clinician_id, agrees_with_ai, clinician_diagnosis,
			notes, override_flags, follow_up_recommended, follow_up_notes,
			signed_off, signed_off_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.ResultID, a.ClinicianID, a.AgreesWithAI, a.ClinicianDiagnosis,
		a.Notes, flags, a.FollowUpRecommended, a.FollowUpNotes,
		a.SignedOff, a.SignedOffAt, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create annotation: %w", err)
	}
	return nil
}

func (r *annotationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Annotation, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, annotationSelect+` WHERE id = $1`, id)
	a, err := scanAnnotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "annotation", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}
	return a, nil
}

func (r *annotationRepository) Update(ctx context.Context, a *models.Annotation) error {
	q := database.QuerierFrom(ctx, r.db)

	expected := a.Version
	updatedAt := time.Now().UTC()

	flags, err := marshalOverrideFlags(a.OverrideFlags)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE annotations
		SET agrees_with_ai = $1, clinician_diagnosis = $2, notes = $3, override_flags = $4,
			follow_up_recommended = $5, follow_up_notes = $6,
			signed_off = $7, signed_off_at = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11`,
		a.AgreesWithAI, a.ClinicianDiagnosis, a.Notes, flags,
		a.FollowUpRecommended, a.FollowUpNotes,
		a.SignedOff, a.SignedOffAt, updatedAt, a.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM annotations WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check annotation existence: %w", err)
		}
		if !exists {
			return &apperrors.NotFoundError{Entity: "annotation", ID: a.ID.String()}
		}
		return &apperrors.ConcurrentModificationError{Entity: "annotation", ID: a.ID.String(), ExpectedVersion: expected}
	}

	a.Version = expected + 1
	a.UpdatedAt = updatedAt
	return nil
}

func (r *annotationRepository) ListByResult(ctx context.Context, resultID uuid.UUID) ([]*models.Annotation, error) {
	q := database.QuerierFrom(ctx, r.db)

	rows, err := q.Query(ctx, annotationSelect+` WHERE result_id = $1 ORDER BY created_at ASC, id ASC`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()
	return collectAnnotations(rows)
}

func (r *annotationRepository) ListPendingByClinician(ctx context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error) {
	q := database.QuerierFrom(ctx, r.db)

	rows, err := q.Query(ctx,
		annotationSelect+` WHERE clinician_id = $1 AND signed_off = FALSE ORDER BY created_at ASC, id ASC`,
		clinicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending annotations: %w", err)
	}
	defer rows.Close()
	return collectAnnotations(rows)
}

func (r *annotationRepository) CountSignedForCase(ctx context.Context, caseID uuid.UUID) (int, error) {
	q := database.QuerierFrom(ctx, r.db)

	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM annotations a
		JOIN ai_results res ON res.id = a.result_id
		JOIN samples s ON s.id = res.sample_id
		WHERE s.case_id = $1 AND a.signed_off = TRUE`, caseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count signed annotations: %w", err)
	}
	return count, nil
}

const annotationSelect = `
	SELECT id, result_id, clinician_id, agrees_with_ai, clinician_diagnosis,
		notes, override_flags, follow_up_recommended, follow_up_notes,
		signed_off, signed_off_at, version, created_at, updated_at
	FROM annotations`

func marshalOverrideFlags(flags map[string]models.OverrideFlag) ([]byte, error) {
	if flags == nil {
		return nil, nil
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal override flags: %w", err)
	}
	return data, nil
}

func scanAnnotation(row pgx.Row) (*models.Annotation, error) {
	var a models.Annotation
	var flags []byte
	err := row.Scan(
		&a.ID, &a.ResultID, &a.ClinicianID, &a.AgreesWithAI, &a.ClinicianDiagnosis,
		&a.Notes, &flags, &a.FollowUpRecommended, &a.FollowUpNotes,
		&a.SignedOff, &a.SignedOffAt, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &a.OverrideFlags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal override flags: %w", err)
		}
	}
	return &a, nil
}

func collectAnnotations(rows pgx.Rows) ([]*models.Annotation, error) {
	var annotations []*models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating annotations: %w", err)
	}
	return annotations, nil
}

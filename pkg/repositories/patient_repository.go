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

// PatientRepository provides data access for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *models.Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*models.Patient, error)
}

type patientRepository struct {
	db *database.DB
}

// NewPatientRepository creates a new PatientRepository.
func NewPatientRepository(db *database.DB) PatientRepository {
	return &patientRepository{db: db}
}

var _ PatientRepository = (*patientRepository)(nil)

func (r *patientRepository) Create(ctx context.Context, p *models.Patient) error {
	q := database.QuerierFrom(ctx, r.db)

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := q.Exec(ctx, `
		INSERT INTO patients (id, medical_record_number, consent_given, consent_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.MedicalRecordNumber, p.ConsentGiven, p.ConsentAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, `
		SELECT id, medical_record_number, consent_given, consent_at, created_at
		FROM patients WHERE id = $1`, id)

	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "patient", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepository) GetByMRN(ctx context.Context, mrn string) (*models.Patient, error) {
	q := database.QuerierFrom(ctx, r.db)

	row := q.QueryRow(ctx, `
		SELECT id, medical_record_number, consent_given, consent_at, created_at
		FROM patients WHERE medical_record_number = $1`, mrn)

	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperrors.NotFoundError{Entity: "patient", ID: mrn}
		}
		return nil, fmt.Errorf("failed to get patient by mrn: %w", err)
	}
	return p, nil
}

func scanPatient(row pgx.Row) (*models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.ID, &p.MedicalRecordNumber, &p.ConsentGiven, &p.ConsentAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

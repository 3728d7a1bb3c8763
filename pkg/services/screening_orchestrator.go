package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
	"github.com/cervixai/screening-engine/pkg/scorer"
)

// ScreeningOrchestrator is the entry point for every externally triggered
// intent. Each intent authorizes the actor, lets the workflow engine apply
// the transition, and records the audit entry — all inside one transaction,
// so a state change without its audit trace is structurally impossible. The
// one external call, to the AI scorer, happens before the transaction opens;
// a scorer failure leaves no state behind.
type ScreeningOrchestrator interface {
	// RegisterPatient records a patient reference for consent-gated intake.
	RegisterPatient(ctx context.Context, mrn string, consentGiven bool) (*models.Patient, error)

	// OpenCase starts a screening episode for a consented patient.
	OpenCase(ctx context.Context, patientID uuid.UUID, reason string) (*models.Case, error)

	// AddSample registers a specimen under a case.
	AddSample(ctx context.Context, caseID uuid.UUID, collectedAt time.Time, sampleType, artifactRef string) (*models.Sample, error)

	// RequestAnalysis runs the AI scorer on a sample's artifact and records
	// the resulting AIResult.
	RequestAnalysis(ctx context.Context, caseID, sampleID uuid.UUID) (*models.AIResult, error)

	// SubmitReview records a clinician's annotation on an AI result.
	SubmitReview(ctx context.Context, resultID uuid.UUID, input AnnotationInput) (*models.Annotation, error)

	// AmendReview edits an unsigned annotation.
	AmendReview(ctx context.Context, annotationID uuid.UUID, edit AnnotationEdit) (*models.Annotation, error)

	// SignOff finalizes an annotation. Idempotent: a repeated call returns
	// the already-signed record and logs an informational repeat entry.
	SignOff(ctx context.Context, annotationID uuid.UUID) (*models.Annotation, error)

	// CancelCase cancels a non-terminal case.
	CancelCase(ctx context.Context, caseID uuid.UUID, reason string) (*models.Case, error)

	// ReopenCase moves a completed case back for re-analysis.
	ReopenCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error)

	// ArchiveCase soft-archives a terminal case. Rows are never deleted;
	// audit history outlives the case.
	ArchiveCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error)

	// GetCase returns a case with its current state.
	GetCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error)

	// GetCaseDetail returns a case with its samples, their results, and the
	// annotations on each result.
	GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*CaseDetail, error)

	// ListPatientCases returns a patient's cases, newest first.
	ListPatientCases(ctx context.Context, patientID uuid.UUID) ([]*models.Case, error)

	// ListPendingAnnotations returns the clinician's unsigned worklist.
	ListPendingAnnotations(ctx context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error)

	// GetAuditHistory returns the ledger entries for one resource.
	GetAuditHistory(ctx context.Context, resourceType string, resourceID uuid.UUID, cursor string, limit int) (*models.AuditPage, error)
}

// CaseDetail is the full review view of one screening episode: the case,
// every sample collected under it, and the analysis history per sample.
type CaseDetail struct {
	Case    *models.Case    `json:"case"`
	Samples []*SampleDetail `json:"samples"`
}

// SampleDetail pairs a sample with its AI results, newest first.
type SampleDetail struct {
	Sample  *models.Sample  `json:"sample"`
	Results []*ResultDetail `json:"results"`
}

// ResultDetail pairs an AI result with the clinician annotations on it.
type ResultDetail struct {
	Result      *models.AIResult     `json:"result"`
	Annotations []*models.Annotation `json:"annotations"`
}

// AnnotationInput carries a clinician's judgment for SubmitReview.
type AnnotationInput struct {
	AgreesWithAI        *bool
	ClinicianDiagnosis  models.DiagnosisCategory
	Notes               string
	OverrideFlags       map[string]models.OverrideFlag
	FollowUpRecommended bool
	FollowUpNotes       string
}

type screeningOrchestrator struct {
	tx              database.TxRunner
	workflow        WorkflowService
	permissions     PermissionService
	audit           AuditService
	scorer          scorer.Scorer
	scorerTimeout   time.Duration
	reviewThreshold float64

	patientRepo    repositories.PatientRepository
	caseRepo       repositories.CaseRepository
	sampleRepo     repositories.SampleRepository
	resultRepo     repositories.ResultRepository
	annotationRepo repositories.AnnotationRepository

	logger *zap.Logger
}

// NewScreeningOrchestrator creates a new ScreeningOrchestrator.
func NewScreeningOrchestrator(
	tx database.TxRunner,
	workflow WorkflowService,
	permissions PermissionService,
	audit AuditService,
	aiScorer scorer.Scorer,
	scorerTimeout time.Duration,
	reviewThreshold float64,
	patientRepo repositories.PatientRepository,
	caseRepo repositories.CaseRepository,
	sampleRepo repositories.SampleRepository,
	resultRepo repositories.ResultRepository,
	annotationRepo repositories.AnnotationRepository,
	logger *zap.Logger,
) ScreeningOrchestrator {
	if scorerTimeout <= 0 {
		scorerTimeout = 30 * time.Second
	}
	return &screeningOrchestrator{
		tx:              tx,
		workflow:        workflow,
		permissions:     permissions,
		audit:           audit,
		scorer:          aiScorer,
		scorerTimeout:   scorerTimeout,
		reviewThreshold: reviewThreshold,
		patientRepo:     patientRepo,
		caseRepo:        caseRepo,
		sampleRepo:      sampleRepo,
		resultRepo:      resultRepo,
		annotationRepo:  annotationRepo,
		logger:          logger.Named("screening-orchestrator"),
	}
}

var _ ScreeningOrchestrator = (*screeningOrchestrator)(nil)

func (o *screeningOrchestrator) RegisterPatient(ctx context.Context, mrn string, consentGiven bool) (*models.Patient, error) {
	if err := o.permissions.Authorize(ctx, "patient", "create"); err != nil {
		return nil, err
	}
	if mrn == "" {
		return nil, fmt.Errorf("medical record number must not be empty")
	}

	// Intake is idempotent on the medical record number: repeated referrals
	// for a known patient return the existing record.
	existing, err := o.patientRepo.GetByMRN(ctx, mrn)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	patient := &models.Patient{
		MedicalRecordNumber: mrn,
		ConsentGiven:        consentGiven,
	}
	if consentGiven {
		now := time.Now().UTC()
		patient.ConsentAt = &now
	}

	if err := o.patientRepo.Create(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

func (o *screeningOrchestrator) OpenCase(ctx context.Context, patientID uuid.UUID, reason string) (*models.Case, error) {
	if err := o.permissions.Authorize(ctx, "case", "create"); err != nil {
		return nil, err
	}

	patient, err := o.patientRepo.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.ConsentGiven {
		return nil, fmt.Errorf("patient %s: %w", patientID, apperrors.ErrConsentRequired)
	}

	c := &models.Case{
		PatientID: patientID,
		State:     models.ScreeningStatePending,
		Reason:    reason,
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.caseRepo.Create(txCtx, c); err != nil {
			return err
		}
		return o.audit.Record(txCtx, models.ActionCaseCreate, "case", &c.ID,
			map[string]any{"patient_id": patientID.String(), "reason": reason},
			models.SeverityInfo)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (o *screeningOrchestrator) AddSample(ctx context.Context, caseID uuid.UUID, collectedAt time.Time, sampleType, artifactRef string) (*models.Sample, error) {
	if err := o.permissions.Authorize(ctx, "sample", "create"); err != nil {
		return nil, err
	}

	c, err := o.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.State.IsTerminal() {
		return nil, &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(c.State)}
	}

	sample := &models.Sample{
		CaseID:      caseID,
		CollectedAt: collectedAt,
		SampleType:  sampleType,
		State:       models.SampleStatePending,
		ArtifactRef: artifactRef,
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.sampleRepo.Create(txCtx, sample); err != nil {
			return err
		}
		return o.audit.Record(txCtx, models.ActionSampleCreate, "sample", &sample.ID,
			map[string]any{"case_id": caseID.String(), "sample_type": sampleType},
			models.SeverityInfo)
	})
	if err != nil {
		return nil, err
	}
	return sample, nil
}

func (o *screeningOrchestrator) RequestAnalysis(ctx context.Context, caseID, sampleID uuid.UUID) (*models.AIResult, error) {
	if err := o.permissions.Authorize(ctx, "ai_result", "create"); err != nil {
		return nil, err
	}

	c, err := o.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	sample, err := o.sampleRepo.GetByID(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	if sample.CaseID != caseID {
		return nil, &apperrors.NotFoundError{Entity: "sample", ID: sampleID.String()}
	}

	// Pre-flight the workflow rules before paying for a scorer call.
	if c.State == models.ScreeningStateCompleted {
		return nil, fmt.Errorf("case %s: %w", caseID, apperrors.ErrCaseFinalized)
	}
	if !c.State.AllowsAnalysis() {
		return nil, &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(models.ScreeningStateAIAnalyzed)}
	}
	if !sample.HasArtifact() {
		return nil, fmt.Errorf("sample %s has no input artifact: %w", sampleID, apperrors.ErrInvalidArtifact)
	}

	// On re-analysis the ledger records which result is being superseded.
	var supersedes *uuid.UUID
	if sample.State != models.SampleStatePending {
		prev, err := o.resultRepo.GetLatestBySample(ctx, sampleID)
		switch {
		case err == nil:
			supersedes = &prev.ID
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}

	scoreCtx, cancel := context.WithTimeout(ctx, o.scorerTimeout)
	defer cancel()
	pred, err := o.scorer.Score(scoreCtx, sample.ArtifactRef)
	if err != nil {
		return nil, err
	}

	var result *models.AIResult
	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		result, err = o.workflow.RecordAnalysis(txCtx, c, sample, pred, o.reviewThreshold)
		if err != nil {
			return err
		}
		severity := models.SeverityInfo
		if result.FlaggedForReview {
			severity = models.SeverityWarning
		}
		details := map[string]any{
			"case_id":            caseID.String(),
			"sample_id":          sampleID.String(),
			"primary_label":      string(result.PrimaryLabel),
			"primary_confidence": result.PrimaryConfidence,
			"model_name":         result.ModelName,
			"model_version":      result.ModelVersion,
			"flagged_for_review": result.FlaggedForReview,
		}
		if supersedes != nil {
			details["supersedes_result_id"] = supersedes.String()
		}
		return o.audit.Record(txCtx, models.ActionResultCreate, "ai_result", &result.ID, details, severity)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *screeningOrchestrator) SubmitReview(ctx context.Context, resultID uuid.UUID, input AnnotationInput) (*models.Annotation, error) {
	if err := o.permissions.Authorize(ctx, "annotation", "create"); err != nil {
		return nil, err
	}
	actor, ok := models.GetActor(ctx)
	if !ok {
		return nil, fmt.Errorf("no acting identity: %w", apperrors.ErrUnauthorized)
	}

	c, _, err := o.resolveCaseForResult(ctx, resultID)
	if err != nil {
		return nil, err
	}

	annotation := &models.Annotation{
		ResultID:            resultID,
		ClinicianID:         actor.ID,
		AgreesWithAI:        input.AgreesWithAI,
		ClinicianDiagnosis:  input.ClinicianDiagnosis,
		Notes:               input.Notes,
		OverrideFlags:       input.OverrideFlags,
		FollowUpRecommended: input.FollowUpRecommended,
		FollowUpNotes:       input.FollowUpNotes,
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.workflow.CreateAnnotation(txCtx, c, annotation); err != nil {
			return err
		}
		details := map[string]any{
			"case_id":   c.ID.String(),
			"result_id": resultID.String(),
		}
		if input.AgreesWithAI != nil {
			details["agrees_with_ai"] = *input.AgreesWithAI
		}
		if input.ClinicianDiagnosis != "" {
			details["clinician_diagnosis"] = string(input.ClinicianDiagnosis)
		}
		return o.audit.Record(txCtx, models.ActionAnnotationCreate, "annotation", &annotation.ID,
			details, models.SeverityInfo)
	})
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

func (o *screeningOrchestrator) AmendReview(ctx context.Context, annotationID uuid.UUID, edit AnnotationEdit) (*models.Annotation, error) {
	if err := o.permissions.Authorize(ctx, "annotation", "update"); err != nil {
		return nil, err
	}

	annotation, err := o.annotationRepo.GetByID(ctx, annotationID)
	if err != nil {
		return nil, err
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.workflow.UpdateAnnotation(txCtx, annotation, edit); err != nil {
			return err
		}
		return o.audit.Record(txCtx, models.ActionAnnotationUpdate, "annotation", &annotation.ID,
			map[string]any{"result_id": annotation.ResultID.String()},
			models.SeverityInfo)
	})
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

func (o *screeningOrchestrator) SignOff(ctx context.Context, annotationID uuid.UUID) (*models.Annotation, error) {
	if err := o.permissions.Authorize(ctx, "annotation", "sign_off"); err != nil {
		return nil, err
	}

	annotation, err := o.annotationRepo.GetByID(ctx, annotationID)
	if err != nil {
		return nil, err
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		repeated, completed, err := o.workflow.SignOffAnnotation(txCtx, annotation)
		if err != nil {
			return err
		}
		if repeated {
			return o.audit.Record(txCtx, models.ActionSignOffRepeat, "annotation", &annotation.ID,
				map[string]any{"signed_off_at": annotation.SignedOffAt},
				models.SeverityInfo)
		}
		return o.audit.Record(txCtx, models.ActionAnnotationSignOff, "annotation", &annotation.ID,
			map[string]any{
				"result_id":      annotation.ResultID.String(),
				"clinician_id":   annotation.ClinicianID.String(),
				"case_completed": completed,
			},
			models.SeverityCritical)
	})
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

func (o *screeningOrchestrator) CancelCase(ctx context.Context, caseID uuid.UUID, reason string) (*models.Case, error) {
	if err := o.permissions.Authorize(ctx, "case", "cancel"); err != nil {
		return nil, err
	}

	c, err := o.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.workflow.TransitionCase(txCtx, c, models.ScreeningStateCancelled); err != nil {
			return err
		}
		return o.audit.Record(txCtx, models.ActionCaseCancel, "case", &c.ID,
			map[string]any{"reason": reason},
			models.SeverityWarning)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (o *screeningOrchestrator) ReopenCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	if err := o.permissions.Authorize(ctx, "case", "reopen"); err != nil {
		return nil, err
	}

	c, err := o.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.workflow.ReopenCase(txCtx, c); err != nil {
			return err
		}
		return o.audit.Record(txCtx, models.ActionCaseReopen, "case", &c.ID,
			map[string]any{"previous_state": string(models.ScreeningStateCompleted)},
			models.SeverityWarning)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (o *screeningOrchestrator) ArchiveCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	if err := o.permissions.Authorize(ctx, "case", "archive"); err != nil {
		return nil, err
	}

	c, err := o.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.State.IsTerminal() {
		return nil, &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: "archived"}
	}
	if c.IsArchived() {
		return c, nil
	}

	now := time.Now().UTC()
	c.ArchivedAt = &now

	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := o.caseRepo.Update(txCtx, c); err != nil {
			return err
		}
		return o.audit.Record(txCtx, models.ActionCaseArchive, "case", &c.ID, nil, models.SeverityInfo)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (o *screeningOrchestrator) GetCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	if err := o.permissions.Authorize(ctx, "case", "read"); err != nil {
		return nil, err
	}
	return o.caseRepo.GetByID(ctx, caseID)
}

func (o *screeningOrchestrator) GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*CaseDetail, error) {
	if err := o.permissions.Authorize(ctx, "case", "read"); err != nil {
		return nil, err
	}

	c, err := o.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	samples, err := o.sampleRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	detail := &CaseDetail{Case: c, Samples: make([]*SampleDetail, 0, len(samples))}
	for _, sample := range samples {
		results, err := o.resultRepo.ListBySample(ctx, sample.ID)
		if err != nil {
			return nil, err
		}
		sd := &SampleDetail{Sample: sample, Results: make([]*ResultDetail, 0, len(results))}
		for _, result := range results {
			annotations, err := o.annotationRepo.ListByResult(ctx, result.ID)
			if err != nil {
				return nil, err
			}
			sd.Results = append(sd.Results, &ResultDetail{Result: result, Annotations: annotations})
		}
		detail.Samples = append(detail.Samples, sd)
	}
	return detail, nil
}

func (o *screeningOrchestrator) ListPatientCases(ctx context.Context, patientID uuid.UUID) ([]*models.Case, error) {
	if err := o.permissions.Authorize(ctx, "case", "read"); err != nil {
		return nil, err
	}
	if _, err := o.patientRepo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return o.caseRepo.ListByPatient(ctx, patientID)
}

func (o *screeningOrchestrator) ListPendingAnnotations(ctx context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error) {
	if err := o.permissions.Authorize(ctx, "annotation", "read"); err != nil {
		return nil, err
	}
	return o.annotationRepo.ListPendingByClinician(ctx, clinicianID)
}

func (o *screeningOrchestrator) GetAuditHistory(ctx context.Context, resourceType string, resourceID uuid.UUID, cursor string, limit int) (*models.AuditPage, error) {
	if err := o.permissions.Authorize(ctx, "audit_entry", "read"); err != nil {
		return nil, err
	}
	return o.audit.Query(ctx, models.AuditFilters{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Cursor:       cursor,
		Limit:        limit,
	})
}

// resolveCaseForResult walks result → sample → case.
func (o *screeningOrchestrator) resolveCaseForResult(ctx context.Context, resultID uuid.UUID) (*models.Case, *models.AIResult, error) {
	result, err := o.resultRepo.GetByID(ctx, resultID)
	if err != nil {
		return nil, nil, err
	}
	sample, err := o.sampleRepo.GetByID(ctx, result.SampleID)
	if err != nil {
		return nil, nil, err
	}
	c, err := o.caseRepo.GetByID(ctx, sample.CaseID)
	if err != nil {
		return nil, nil, err
	}
	return c, result, nil
}

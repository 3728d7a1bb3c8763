package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/repositories"
	"github.com/cervixai/screening-engine/pkg/scorer"
)

// WorkflowService owns the screening state machines and their invariants:
// legal transitions, AIResult creation rules, the annotation sign-off lock,
// and the human-oversight completion gate. Callers coordinate transactions
// and audit; this service decides what is allowed.
type WorkflowService interface {
	// TransitionCase moves a case to the target state after validating the
	// transition table. Moving to Completed additionally requires at least
	// one signed-off annotation on one of the case's results.
	TransitionCase(ctx context.Context, c *models.Case, target models.ScreeningState) error

	// RecordAnalysis turns a scorer prediction into a stored AIResult and
	// advances the case and sample machines. Allowed only while the case is
	// in Pending or AIAnalyzed; a case with a signed-off annotation is
	// finalized for the round and rejects re-analysis until reopened.
	// Predictions whose primary confidence falls below reviewThreshold are
	// flagged for manual review.
	RecordAnalysis(ctx context.Context, c *models.Case, sample *models.Sample, pred *scorer.Prediction, reviewThreshold float64) (*models.AIResult, error)

	// CreateAnnotation records a clinician's judgment on a result. The
	// owning case must not be completed; the case moves to UnderReview if it
	// was still AIAnalyzed.
	CreateAnnotation(ctx context.Context, c *models.Case, a *models.Annotation) error

	// UpdateAnnotation applies edits to an unsigned annotation. A signed
	// annotation is immutable and returns ErrAnnotationLocked.
	UpdateAnnotation(ctx context.Context, a *models.Annotation, edit AnnotationEdit) error

	// SignOffAnnotation finalizes an annotation. The call is idempotent:
	// signing an already-signed annotation returns it unchanged with
	// repeated=true. A first sign-off also moves the result's sample to
	// Reviewed and, when the case qualifies, completes the case.
	SignOffAnnotation(ctx context.Context, a *models.Annotation) (repeated bool, caseCompleted bool, err error)

	// ReopenCase moves a completed case back to AIAnalyzed. This is the only
	// path that unblocks re-analysis of a finalized round.
	ReopenCase(ctx context.Context, c *models.Case) error
}

// AnnotationEdit carries the mutable annotation fields for an update. Nil
// pointer fields are left unchanged.
type AnnotationEdit struct {
	AgreesWithAI        *bool
	ClinicianDiagnosis  *models.DiagnosisCategory
	Notes               *string
	OverrideFlags       map[string]models.OverrideFlag
	FollowUpRecommended *bool
	FollowUpNotes       *string
}

type workflowService struct {
	caseRepo       repositories.CaseRepository
	sampleRepo     repositories.SampleRepository
	resultRepo     repositories.ResultRepository
	annotationRepo repositories.AnnotationRepository
	logger         *zap.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	caseRepo repositories.CaseRepository,
	sampleRepo repositories.SampleRepository,
	resultRepo repositories.ResultRepository,
	annotationRepo repositories.AnnotationRepository,
	logger *zap.Logger,
) WorkflowService {
	return &workflowService{
		caseRepo:       caseRepo,
		sampleRepo:     sampleRepo,
		resultRepo:     resultRepo,
		annotationRepo: annotationRepo,
		logger:         logger.Named("workflow-service"),
	}
}

var _ WorkflowService = (*workflowService)(nil)

func (s *workflowService) TransitionCase(ctx context.Context, c *models.Case, target models.ScreeningState) error {
	if !c.State.CanTransitionTo(target) {
		return &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(target)}
	}

	if target == models.ScreeningStateCompleted {
		signed, err := s.annotationRepo.CountSignedForCase(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to check completion gate: %w", err)
		}
		if signed == 0 {
			return &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(target)}
		}
	}

	from := c.State
	c.State = target
	if err := s.caseRepo.Update(ctx, c); err != nil {
		c.State = from
		return err
	}

	s.logger.Info("Case transitioned",
		zap.String("case_id", c.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(target)))
	return nil
}

func (s *workflowService) RecordAnalysis(ctx context.Context, c *models.Case, sample *models.Sample, pred *scorer.Prediction, reviewThreshold float64) (*models.AIResult, error) {
	if c.State == models.ScreeningStateCompleted {
		return nil, fmt.Errorf("case %s: %w", c.ID, apperrors.ErrCaseFinalized)
	}
	if !c.State.AllowsAnalysis() {
		return nil, &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(models.ScreeningStateAIAnalyzed)}
	}
	if sample.CaseID != c.ID {
		return nil, &apperrors.NotFoundError{Entity: "sample", ID: sample.ID.String()}
	}
	if !sample.HasArtifact() {
		return nil, fmt.Errorf("sample %s has no input artifact: %w", sample.ID, apperrors.ErrInvalidArtifact)
	}

	result, err := models.NewAIResult(sample.ID, pred.Scores, pred.ExplainabilityRef, pred.ModelName, pred.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("rejected scorer output: %w: %w", apperrors.ErrInvalidArtifact, err)
	}
	if result.PrimaryConfidence < reviewThreshold {
		result.FlaggedForReview = true
		result.Notes = fmt.Sprintf("primary confidence %.3f below review threshold %.3f", result.PrimaryConfidence, reviewThreshold)
	}

	if err := s.resultRepo.Create(ctx, result); err != nil {
		return nil, err
	}

	if sample.State.CanTransitionTo(models.SampleStateAnalyzed) {
		sample.State = models.SampleStateAnalyzed
	}
	if err := s.sampleRepo.Update(ctx, sample); err != nil {
		return nil, err
	}

	if c.State == models.ScreeningStatePending {
		c.State = models.ScreeningStateAIAnalyzed
	}
	// The version check runs even when the state value is unchanged, so
	// concurrent analysis requests on the same case serialize: the loser
	// gets ConcurrentModification.
	if err := s.caseRepo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("Analysis recorded",
		zap.String("case_id", c.ID.String()),
		zap.String("sample_id", sample.ID.String()),
		zap.String("primary_label", string(result.PrimaryLabel)),
		zap.Float64("confidence", result.PrimaryConfidence),
		zap.Bool("flagged", result.FlaggedForReview))
	return result, nil
}

func (s *workflowService) CreateAnnotation(ctx context.Context, c *models.Case, a *models.Annotation) error {
	if c.State == models.ScreeningStateCompleted || c.State == models.ScreeningStateCancelled {
		return &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(models.ScreeningStateUnderReview)}
	}
	if a.ClinicianDiagnosis != "" && !a.ClinicianDiagnosis.IsValid() {
		return fmt.Errorf("unknown clinician diagnosis %q", a.ClinicianDiagnosis)
	}

	if err := s.annotationRepo.Create(ctx, a); err != nil {
		return err
	}

	if c.State == models.ScreeningStateAIAnalyzed {
		if err := s.TransitionCase(ctx, c, models.ScreeningStateUnderReview); err != nil {
			return err
		}
	}
	return nil
}

func (s *workflowService) UpdateAnnotation(ctx context.Context, a *models.Annotation, edit AnnotationEdit) error {
	if !a.Editable() {
		return fmt.Errorf("annotation %s: %w", a.ID, apperrors.ErrAnnotationLocked)
	}

	if edit.AgreesWithAI != nil {
		a.AgreesWithAI = edit.AgreesWithAI
	}
	if edit.ClinicianDiagnosis != nil {
		if *edit.ClinicianDiagnosis != "" && !edit.ClinicianDiagnosis.IsValid() {
			return fmt.Errorf("unknown clinician diagnosis %q", *edit.ClinicianDiagnosis)
		}
		a.ClinicianDiagnosis = *edit.ClinicianDiagnosis
	}
	if edit.Notes != nil {
		a.Notes = *edit.Notes
	}
	if edit.OverrideFlags != nil {
		a.OverrideFlags = edit.OverrideFlags
	}
	if edit.FollowUpRecommended != nil {
		a.FollowUpRecommended = *edit.FollowUpRecommended
	}
	if edit.FollowUpNotes != nil {
		a.FollowUpNotes = *edit.FollowUpNotes
	}

	return s.annotationRepo.Update(ctx, a)
}

func (s *workflowService) SignOffAnnotation(ctx context.Context, a *models.Annotation) (bool, bool, error) {
	if !a.SignOff(time.Now().UTC()) {
		// Already signed: idempotent, nothing written.
		return true, false, nil
	}

	if err := s.annotationRepo.Update(ctx, a); err != nil {
		return false, false, err
	}

	result, err := s.resultRepo.GetByID(ctx, a.ResultID)
	if err != nil {
		return false, false, err
	}
	sample, err := s.sampleRepo.GetByID(ctx, result.SampleID)
	if err != nil {
		return false, false, err
	}

	if sample.State.CanTransitionTo(models.SampleStateReviewed) {
		sample.State = models.SampleStateReviewed
		if err := s.sampleRepo.Update(ctx, sample); err != nil {
			return false, false, err
		}
	}

	c, err := s.caseRepo.GetByID(ctx, sample.CaseID)
	if err != nil {
		return false, false, err
	}

	completed := false
	if c.State == models.ScreeningStateUnderReview {
		if err := s.TransitionCase(ctx, c, models.ScreeningStateCompleted); err != nil {
			return false, false, err
		}
		completed = true
	}

	s.logger.Info("Annotation signed off",
		zap.String("annotation_id", a.ID.String()),
		zap.String("case_id", c.ID.String()),
		zap.Bool("case_completed", completed))
	return false, completed, nil
}

func (s *workflowService) ReopenCase(ctx context.Context, c *models.Case) error {
	if c.State != models.ScreeningStateCompleted {
		return &apperrors.InvalidTransitionError{Entity: "case", From: string(c.State), To: string(models.ScreeningStateAIAnalyzed)}
	}

	c.State = models.ScreeningStateAIAnalyzed
	if err := s.caseRepo.Update(ctx, c); err != nil {
		c.State = models.ScreeningStateCompleted
		return err
	}

	s.logger.Info("Case reopened", zap.String("case_id", c.ID.String()))
	return nil
}

package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/services"
)

var errNotStubbed = errors.New("not stubbed")

// mockOrchestrator implements services.ScreeningOrchestrator with injectable
// function fields. Unset operations fail loudly.
type mockOrchestrator struct {
	registerPatientFn func(ctx context.Context, mrn string, consentGiven bool) (*models.Patient, error)
	openCaseFn        func(ctx context.Context, patientID uuid.UUID, reason string) (*models.Case, error)
	addSampleFn       func(ctx context.Context, caseID uuid.UUID, collectedAt time.Time, sampleType, artifactRef string) (*models.Sample, error)
	requestAnalysisFn func(ctx context.Context, caseID, sampleID uuid.UUID) (*models.AIResult, error)
	submitReviewFn    func(ctx context.Context, resultID uuid.UUID, input services.AnnotationInput) (*models.Annotation, error)
	amendReviewFn     func(ctx context.Context, annotationID uuid.UUID, edit services.AnnotationEdit) (*models.Annotation, error)
	signOffFn         func(ctx context.Context, annotationID uuid.UUID) (*models.Annotation, error)
	cancelCaseFn      func(ctx context.Context, caseID uuid.UUID, reason string) (*models.Case, error)
	reopenCaseFn      func(ctx context.Context, caseID uuid.UUID) (*models.Case, error)
	archiveCaseFn     func(ctx context.Context, caseID uuid.UUID) (*models.Case, error)
	getCaseFn         func(ctx context.Context, caseID uuid.UUID) (*models.Case, error)
	caseDetailFn      func(ctx context.Context, caseID uuid.UUID) (*services.CaseDetail, error)
	patientCasesFn    func(ctx context.Context, patientID uuid.UUID) ([]*models.Case, error)
	listPendingFn     func(ctx context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error)
	auditHistoryFn    func(ctx context.Context, resourceType string, resourceID uuid.UUID, cursor string, limit int) (*models.AuditPage, error)
}

var _ services.ScreeningOrchestrator = (*mockOrchestrator)(nil)

func (m *mockOrchestrator) RegisterPatient(ctx context.Context, mrn string, consentGiven bool) (*models.Patient, error) {
	if m.registerPatientFn == nil {
		return nil, errNotStubbed
	}
	return m.registerPatientFn(ctx, mrn, consentGiven)
}

func (m *mockOrchestrator) OpenCase(ctx context.Context, patientID uuid.UUID, reason string) (*models.Case, error) {
	if m.openCaseFn == nil {
		return nil, errNotStubbed
	}
	return m.openCaseFn(ctx, patientID, reason)
}

func (m *mockOrchestrator) AddSample(ctx context.Context, caseID uuid.UUID, collectedAt time.Time, sampleType, artifactRef string) (*models.Sample, error) {
	if m.addSampleFn == nil {
		return nil, errNotStubbed
	}
	return m.addSampleFn(ctx, caseID, collectedAt, sampleType, artifactRef)
}

func (m *mockOrchestrator) RequestAnalysis(ctx context.Context, caseID, sampleID uuid.UUID) (*models.AIResult, error) {
	if m.requestAnalysisFn == nil {
		return nil, errNotStubbed
	}
	return m.requestAnalysisFn(ctx, caseID, sampleID)
}

func (m *mockOrchestrator) SubmitReview(ctx context.Context, resultID uuid.UUID, input services.AnnotationInput) (*models.Annotation, error) {
	if m.submitReviewFn == nil {
		return nil, errNotStubbed
	}
	return m.submitReviewFn(ctx, resultID, input)
}

func (m *mockOrchestrator) AmendReview(ctx context.Context, annotationID uuid.UUID, edit services.AnnotationEdit) (*models.Annotation, error) {
	if m.amendReviewFn == nil {
		return nil, errNotStubbed
	}
	return m.amendReviewFn(ctx, annotationID, edit)
}

func (m *mockOrchestrator) SignOff(ctx context.Context, annotationID uuid.UUID) (*models.Annotation, error) {
	if m.signOffFn == nil {
		return nil, errNotStubbed
	}
	return m.signOffFn(ctx, annotationID)
}

func (m *mockOrchestrator) CancelCase(ctx context.Context, caseID uuid.UUID, reason string) (*models.Case, error) {
	if m.cancelCaseFn == nil {
		return nil, errNotStubbed
	}
	return m.cancelCaseFn(ctx, caseID, reason)
}

func (m *mockOrchestrator) ReopenCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	if m.reopenCaseFn == nil {
		return nil, errNotStubbed
	}
	return m.reopenCaseFn(ctx, caseID)
}

func (m *mockOrchestrator) ArchiveCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	if m.archiveCaseFn == nil {
		return nil, errNotStubbed
	}
	return m.archiveCaseFn(ctx, caseID)
}

func (m *mockOrchestrator) GetCase(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	if m.getCaseFn == nil {
		return nil, errNotStubbed
	}
	return m.getCaseFn(ctx, caseID)
}

func (m *mockOrchestrator) GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*services.CaseDetail, error) {
	if m.caseDetailFn == nil {
		return nil, errNotStubbed
	}
	return m.caseDetailFn(ctx, caseID)
}

func (m *mockOrchestrator) ListPatientCases(ctx context.Context, patientID uuid.UUID) ([]*models.Case, error) {
	if m.patientCasesFn == nil {
		return nil, errNotStubbed
	}
	return m.patientCasesFn(ctx, patientID)
}

func (m *mockOrchestrator) ListPendingAnnotations(ctx context.Context, clinicianID uuid.UUID) ([]*models.Annotation, error) {
	if m.listPendingFn == nil {
		return nil, errNotStubbed
	}
	return m.listPendingFn(ctx, clinicianID)
}

func (m *mockOrchestrator) GetAuditHistory(ctx context.Context, resourceType string, resourceID uuid.UUID, cursor string, limit int) (*models.AuditPage, error) {
	if m.auditHistoryFn == nil {
		return nil, errNotStubbed
	}
	return m.auditHistoryFn(ctx, resourceType, resourceID, cursor, limit)
}

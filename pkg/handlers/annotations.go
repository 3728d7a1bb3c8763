package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/auth"
	"github.com/cervixai/screening-engine/pkg/models"
	"github.com/cervixai/screening-engine/pkg/services"
)

// AnnotationsHandler handles clinician review HTTP requests: submitting,
// amending, and signing off annotations, plus the pending worklist.
type AnnotationsHandler struct {
	orchestrator services.ScreeningOrchestrator
	logger       *zap.Logger
}

// NewAnnotationsHandler creates a new annotations handler.
func NewAnnotationsHandler(orchestrator services.ScreeningOrchestrator, logger *zap.Logger) *AnnotationsHandler {
	return &AnnotationsHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the annotations handler's routes on the given mux.
func (h *AnnotationsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/results/{rid}/annotations", authMiddleware.RequireActor(h.Submit))
	mux.HandleFunc("PATCH /api/annotations/{aid}", authMiddleware.RequireActor(h.Amend))
	mux.HandleFunc("POST /api/annotations/{aid}/sign-off", authMiddleware.RequireActor(h.SignOff))
	mux.HandleFunc("GET /api/annotations/pending", authMiddleware.RequireActor(h.Pending))
}

type submitAnnotationRequest struct {
	AgreesWithAI        *bool                          `json:"agrees_with_ai,omitempty"`
	ClinicianDiagnosis  models.DiagnosisCategory       `json:"clinician_diagnosis,omitempty"`
	Notes               string                         `json:"notes,omitempty"`
	OverrideFlags       map[string]models.OverrideFlag `json:"override_flags,omitempty"`
	FollowUpRecommended bool                           `json:"follow_up_recommended"`
	FollowUpNotes       string                         `json:"follow_up_notes,omitempty"`
}

type amendAnnotationRequest struct {
	AgreesWithAI        *bool                          `json:"agrees_with_ai,omitempty"`
	ClinicianDiagnosis  *models.DiagnosisCategory      `json:"clinician_diagnosis,omitempty"`
	Notes               *string                        `json:"notes,omitempty"`
	OverrideFlags       map[string]models.OverrideFlag `json:"override_flags,omitempty"`
	FollowUpRecommended *bool                          `json:"follow_up_recommended,omitempty"`
	FollowUpNotes       *string                        `json:"follow_up_notes,omitempty"`
}

// Submit handles POST /api/results/{rid}/annotations
// Records the acting clinician's judgment on an AI result.
func (h *AnnotationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	resultID, ok := ParseResultID(w, r, h.logger)
	if !ok {
		return
	}

	var req submitAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	annotation, err := h.orchestrator.SubmitReview(r.Context(), resultID, services.AnnotationInput{
		AgreesWithAI:        req.AgreesWithAI,
		ClinicianDiagnosis:  req.ClinicianDiagnosis,
		Notes:               req.Notes,
		OverrideFlags:       req.OverrideFlags,
		FollowUpRecommended: req.FollowUpRecommended,
		FollowUpNotes:       req.FollowUpNotes,
	})
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, annotation); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Amend handles PATCH /api/annotations/{aid}
// Edits an unsigned annotation. Absent fields are left unchanged.
func (h *AnnotationsHandler) Amend(w http.ResponseWriter, r *http.Request) {
	annotationID, ok := ParseAnnotationID(w, r, h.logger)
	if !ok {
		return
	}

	var req amendAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	annotation, err := h.orchestrator.AmendReview(r.Context(), annotationID, services.AnnotationEdit{
		AgreesWithAI:        req.AgreesWithAI,
		ClinicianDiagnosis:  req.ClinicianDiagnosis,
		Notes:               req.Notes,
		OverrideFlags:       req.OverrideFlags,
		FollowUpRecommended: req.FollowUpRecommended,
		FollowUpNotes:       req.FollowUpNotes,
	})
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, annotation); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SignOff handles POST /api/annotations/{aid}/sign-off
// Finalizes an annotation. Repeated calls return the already-signed record.
func (h *AnnotationsHandler) SignOff(w http.ResponseWriter, r *http.Request) {
	annotationID, ok := ParseAnnotationID(w, r, h.logger)
	if !ok {
		return
	}

	annotation, err := h.orchestrator.SignOff(r.Context(), annotationID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, annotation); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Pending handles GET /api/annotations/pending
// Returns the acting clinician's unsigned worklist, oldest first.
func (h *AnnotationsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := models.GetActor(r.Context())
	if !ok {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Missing identity"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	annotations, err := h.orchestrator.ListPendingAnnotations(r.Context(), actor.ID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"annotations": annotations}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/auth"
	"github.com/cervixai/screening-engine/pkg/services"
)

// PatientsHandler handles patient intake HTTP requests.
type PatientsHandler struct {
	orchestrator services.ScreeningOrchestrator
	logger       *zap.Logger
}

// NewPatientsHandler creates a new patients handler.
func NewPatientsHandler(orchestrator services.ScreeningOrchestrator, logger *zap.Logger) *PatientsHandler {
	return &PatientsHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the patients handler's routes on the given mux.
func (h *PatientsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/patients", authMiddleware.RequireActor(h.Register))
	mux.HandleFunc("GET /api/patients/{pid}/cases", authMiddleware.RequireActor(h.ListCases))
}

type registerPatientRequest struct {
	MedicalRecordNumber string `json:"medical_record_number"`
	ConsentGiven        bool   `json:"consent_given"`
}

// Register handles POST /api/patients
// Records a patient reference with its consent state.
func (h *PatientsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.MedicalRecordNumber == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_mrn", "medical_record_number is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	patient, err := h.orchestrator.RegisterPatient(r.Context(), req.MedicalRecordNumber, req.ConsentGiven)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, patient); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListCases handles GET /api/patients/{pid}/cases
// Returns the patient's screening episodes, newest first.
func (h *PatientsHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	patientID, ok := ParsePatientID(w, r, h.logger)
	if !ok {
		return
	}

	cases, err := h.orchestrator.ListPatientCases(r.Context(), patientID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"cases": cases}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

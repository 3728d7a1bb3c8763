package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/auth"
	"github.com/cervixai/screening-engine/pkg/services"
)

// CasesHandler handles screening case HTTP requests: intake, analysis, and
// case lifecycle (cancel, reopen, archive).
type CasesHandler struct {
	orchestrator services.ScreeningOrchestrator
	logger       *zap.Logger
}

// NewCasesHandler creates a new cases handler.
func NewCasesHandler(orchestrator services.ScreeningOrchestrator, logger *zap.Logger) *CasesHandler {
	return &CasesHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the cases handler's routes on the given mux.
func (h *CasesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/cases", authMiddleware.RequireActor(h.Open))
	mux.HandleFunc("GET /api/cases/{cid}", authMiddleware.RequireActor(h.Get))
	mux.HandleFunc("GET /api/cases/{cid}/detail", authMiddleware.RequireActor(h.Detail))
	mux.HandleFunc("POST /api/cases/{cid}/samples", authMiddleware.RequireActor(h.AddSample))
	mux.HandleFunc("POST /api/cases/{cid}/samples/{sid}/analyze", authMiddleware.RequireActor(h.Analyze))
	mux.HandleFunc("POST /api/cases/{cid}/cancel", authMiddleware.RequireActor(h.Cancel))
	mux.HandleFunc("POST /api/cases/{cid}/reopen", authMiddleware.RequireActor(h.Reopen))
	mux.HandleFunc("POST /api/cases/{cid}/archive", authMiddleware.RequireActor(h.Archive))
}

type openCaseRequest struct {
	PatientID string `json:"patient_id"`
	Reason    string `json:"reason,omitempty"`
}

type addSampleRequest struct {
	CollectedAt time.Time `json:"collected_at"`
	SampleType  string    `json:"sample_type,omitempty"`
	ArtifactRef string    `json:"artifact_ref"`
}

type cancelCaseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Open handles POST /api/cases
// Starts a screening episode for a consented patient.
func (h *CasesHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid JSON body")
		return
	}

	patientID, ok := parseBodyUUID(w, req.PatientID, "invalid_patient_id", "Invalid patient ID format", h.logger)
	if !ok {
		return
	}

	screeningCase, err := h.orchestrator.OpenCase(r.Context(), patientID, req.Reason)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, screeningCase); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/cases/{cid}
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	screeningCase, err := h.orchestrator.GetCase(r.Context(), caseID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, screeningCase); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Detail handles GET /api/cases/{cid}/detail
// Returns the case with its samples, results, and annotations.
func (h *CasesHandler) Detail(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	detail, err := h.orchestrator.GetCaseDetail(r.Context(), caseID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, detail); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AddSample handles POST /api/cases/{cid}/samples
// Registers a specimen under a case.
func (h *CasesHandler) AddSample(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	var req addSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid JSON body")
		return
	}
	if req.CollectedAt.IsZero() {
		req.CollectedAt = time.Now().UTC()
	}

	sample, err := h.orchestrator.AddSample(r.Context(), caseID, req.CollectedAt, req.SampleType, req.ArtifactRef)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, sample); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Analyze handles POST /api/cases/{cid}/samples/{sid}/analyze
// Runs the AI scorer on the sample's artifact and records the result.
func (h *CasesHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}
	sampleID, ok := ParseSampleID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.orchestrator.RequestAnalysis(r.Context(), caseID, sampleID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Cancel handles POST /api/cases/{cid}/cancel
func (h *CasesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	var req cancelCaseRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, "invalid_request", "Invalid JSON body")
			return
		}
	}

	screeningCase, err := h.orchestrator.CancelCase(r.Context(), caseID, req.Reason)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, screeningCase); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reopen handles POST /api/cases/{cid}/reopen
// Moves a completed case back for re-analysis.
func (h *CasesHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	screeningCase, err := h.orchestrator.ReopenCase(r.Context(), caseID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, screeningCase); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Archive handles POST /api/cases/{cid}/archive
func (h *CasesHandler) Archive(w http.ResponseWriter, r *http.Request) {
	caseID, ok := ParseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	screeningCase, err := h.orchestrator.ArchiveCase(r.Context(), caseID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, screeningCase); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *CasesHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

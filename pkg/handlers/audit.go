package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/auth"
	"github.com/cervixai/screening-engine/pkg/services"
)

// AuditHandler exposes the audit ledger over HTTP. The ledger itself is
// append-only; this surface is read-only.
type AuditHandler struct {
	orchestrator services.ScreeningOrchestrator
	logger       *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(orchestrator services.ScreeningOrchestrator, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/audit/{resource_type}/{rid}", authMiddleware.RequireActor(h.History))
}

// History handles GET /api/audit/{resource_type}/{rid}
// Returns ledger entries for one resource, newest first. Query parameters:
// cursor (opaque, from a previous page) and limit.
func (h *AuditHandler) History(w http.ResponseWriter, r *http.Request) {
	resourceType := r.PathValue("resource_type")
	resourceID, ok := parseUUID(w, r, "rid", "invalid_resource_id", "Invalid resource ID format", h.logger)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	page, err := h.orchestrator.GetAuditHistory(r.Context(), resourceType, resourceID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, page); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/apperrors"
	"github.com/cervixai/screening-engine/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps a service-layer error onto an HTTP status and writes
// the JSON error body. Conflict-class errors (stale version, bad transition)
// come back as 409 so clients know to re-read and retry.
func WriteServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrAnnotationLocked):
		status, code = http.StatusConflict, "annotation_locked"
	case errors.Is(err, apperrors.ErrCaseFinalized):
		status, code = http.StatusConflict, "case_finalized"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, apperrors.ErrConcurrentModification):
		status, code = http.StatusConflict, "concurrent_modification"
	case errors.Is(err, apperrors.ErrConsentRequired):
		status, code = http.StatusUnprocessableEntity, "consent_required"
	case errors.Is(err, apperrors.ErrInvalidArtifact):
		status, code = http.StatusUnprocessableEntity, "invalid_artifact"
	case errors.Is(err, apperrors.ErrUpstreamTimeout):
		status, code = http.StatusServiceUnavailable, "scorer_timeout"
	case errors.Is(err, apperrors.ErrScorerUnavailable):
		status, code = http.StatusServiceUnavailable, "scorer_unavailable"
	}

	// Database errors can echo inserted values (a unique-violation message
	// includes the conflicting MRN), so the message is scrubbed before it
	// reaches logs or the response body.
	message := logging.SanitizePHI(err.Error())

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("error", message))
	}

	if werr := ErrorResponse(w, status, code, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

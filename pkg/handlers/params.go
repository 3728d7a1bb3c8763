package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParsePatientID extracts and validates the patient ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: pid
func ParsePatientID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "pid", "invalid_patient_id", "Invalid patient ID format", logger)
}

// ParseCaseID extracts and validates the case ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: cid
func ParseCaseID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_case_id", "Invalid case ID format", logger)
}

// ParseSampleID extracts and validates the sample ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseSampleID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_sample_id", "Invalid sample ID format", logger)
}

// ParseResultID extracts and validates the AI result ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: rid
func ParseResultID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "rid", "invalid_result_id", "Invalid result ID format", logger)
}

// ParseAnnotationID extracts and validates the annotation ID from the request
// path. Returns the parsed UUID and true on success, or uuid.Nil and false on
// error (after writing an error response).
// Expects path parameter: aid
func ParseAnnotationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "aid", "invalid_annotation_id", "Invalid annotation ID format", logger)
}

// parseBodyUUID validates a UUID carried in a request body field. Returns the
// parsed UUID and true on success, or uuid.Nil and false on error (after
// writing an error response).
func parseBodyUUID(w http.ResponseWriter, idStr, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

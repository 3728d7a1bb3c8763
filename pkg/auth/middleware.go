package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/models"
)

// Middleware authenticates requests and attaches the acting identity to the
// request context. Authorization decisions happen later, in the permission
// evaluator; this layer only establishes who is asking.
type Middleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewMiddleware creates auth middleware backed by the given validator.
func NewMiddleware(validator TokenValidator, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    logger.Named("auth"),
	}
}

// RequireActor validates the bearer token and puts the actor in the request
// context for downstream handlers.
func (m *Middleware) RequireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			m.unauthorized(w, "Authentication required")
			return
		}

		claims, err := m.validator.ValidateToken(tokenString)
		if err != nil {
			m.logger.Warn("Token validation failed", zap.Error(err))
			m.unauthorized(w, "Authentication required")
			return
		}

		actor, err := claims.ToActor()
		if err != nil {
			m.logger.Warn("Token claims missing actor identity", zap.Error(err))
			m.unauthorized(w, "Invalid token claims")
			return
		}

		next(w, r.WithContext(models.WithActor(r.Context(), actor)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

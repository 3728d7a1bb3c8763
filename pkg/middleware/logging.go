// Package middleware provides HTTP middleware shared across handlers.
package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// slowRequestThreshold promotes a request log line to WARN. Clinician-facing
// endpoints should answer well under this; the scorer path is the usual
// offender when the inference service degrades.
const slowRequestThreshold = 2 * time.Second

// RequestLogger returns middleware that logs HTTP requests at DEBUG level,
// promoting slow requests to WARN. Pass a nil logger to disable logging.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			elapsed := time.Since(start)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			}

			if elapsed >= slowRequestThreshold {
				logger.Warn("Slow HTTP request", fields...)
				return
			}
			logger.Debug("HTTP request", fields...)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

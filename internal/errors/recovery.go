package errors

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/copyleftdev/SBRGA/internal/logging"
)

// requestFields describes r for error entries, including the painting run
// the route addresses.
func requestFields(r *http.Request) map[string]interface{} {
	fields := map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"query":  r.URL.RawQuery,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		fields["request_id"] = id
	}
	if id := chi.URLParam(r, "id"); id != "" {
		fields[logging.FieldRunID] = id
	}
	return fields
}

// RecoveryMiddleware returns a middleware that recovers from panics raised
// by painting handlers and answers 500.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithFields(requestFields(r)).Error("Recovered from panic", map[string]interface{}{
						"error": rec,
						"stack": string(debug.Stack()),
					})

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorHandler logs every response with status >= 400.
func ErrorHandler(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			if rw.status >= http.StatusBadRequest {
				logger.WithFields(requestFields(r)).Error("Request error", map[string]interface{}{
					"status": rw.status,
					"ip":     r.RemoteAddr,
				})
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing the header.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

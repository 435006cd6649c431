package logging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// quietPaths are polled by scrapers and clients; they are logged at debug.
var quietPaths = []string{"/healthz", "/metrics", "/preview.png"}

// Middleware returns a middleware that logs each request once it completes
// and stores a request-scoped logger in the context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			requestLogger := logger.WithFields(map[string]interface{}{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote":     r.RemoteAddr,
			})

			ctx := context.WithValue(r.Context(), ctxLoggerKey{}, &CtxLogger{requestLogger})
			next.ServeHTTP(ww, r.WithContext(ctx))

			latency := time.Since(start)
			fields := map[string]interface{}{
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"latency_ms": float64(latency.Microseconds()) / 1000.0,
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if id := rctx.URLParam("id"); id != "" {
					fields[FieldRunID] = id
				}
			}
			if ww.Status() >= 400 {
				fields["error"] = http.StatusText(ww.Status())
			}

			entry := requestLogger.WithFields(fields)
			if isQuiet(r.URL.Path) && ww.Status() < 400 {
				entry.Debug("Request completed")
				return
			}
			entry.Info("Request completed")
		})
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

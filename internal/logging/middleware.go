package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware logs each request on completion and stores a request scoped
// logger in the context for handlers to pick up with FromContext.
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
			requestLogger.Debug("request started")

			ctx := (&CtxLogger{requestLogger}).WithContext(r.Context())
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Hijacked websocket connections report no status
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			latency := time.Since(start)
			fields := map[string]interface{}{
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"latency_ms": float64(latency.Microseconds()) / 1000.0,
				"user_agent": r.UserAgent(),
			}

			switch {
			case status >= http.StatusInternalServerError:
				fields["error"] = http.StatusText(status)
				requestLogger.Error("request completed", fields)
			case status >= http.StatusBadRequest:
				fields["error"] = http.StatusText(status)
				requestLogger.Warn("request completed", fields)
			default:
				requestLogger.Info("request completed", fields)
			}
		})
	}
}

package logger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestID returns the chi request id of r, or a fresh one when the
// RequestID middleware is not installed.
func RequestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return GenerateRequestID()
}

// Middleware logs every request with its status code and duration.
func (l *Logger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := RequestID(r)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": status,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}
		message := fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, status)
		if status >= http.StatusInternalServerError {
			l.Warn("request_completed", message, requestID, fields)
			return
		}
		l.Debug("request_completed", message, requestID, fields)
	})
}

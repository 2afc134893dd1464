// Package middleware provides HTTP middleware for the sync API.
package middleware

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/logging"
)

// Logger logs one line per request with status and timing. Requests slower
// than SlowRequest are logged at warn level, which mostly catches
// synchronous runs started with ?wait=true.
//
// Log fields: method, path, status, bytes, duration_ms, ip, plus request_id
// from chi's RequestID middleware.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		logger := logging.WithFields(r.Context(),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"bytes", ww.bytes,
			"duration_ms", duration.Milliseconds(),
			"ip", r.RemoteAddr,
		)

		switch {
		case ww.status >= http.StatusInternalServerError:
			logger.Error("request")
		case duration > SlowRequest:
			logger.Warn("slow request")
		case r.URL.Path == "/healthz":
			logger.Debug("request")
		default:
			logger.Info("request")
		}
	})
}

// SlowRequest is the duration above which Logger warns.
var SlowRequest = 10 * time.Second

// responseWriter records the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

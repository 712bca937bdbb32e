package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// headerRequestID is echoed to the client and logged.
const headerRequestID = "X-Request-Id"

// responseWriter is a wrapper for http.ResponseWriter that allows to get the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// newResponseWriter creates a new responseWriter.
// The default status code is 200.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode, w.wroteHeader = code, true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// loggingMiddleware is a middleware for logging http requests.
type loggingMiddleware struct {
	Next   http.Handler
	logger *zap.Logger
}

// ServeHTTP logs every request with its id, status code and duration.
func (m loggingMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(headerRequestID, requestID)

	ww := newResponseWriter(w)
	m.Next.ServeHTTP(ww, r)
	m.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status_code", ww.statusCode),
		zap.Duration("duration", time.Since(start)),
	).Info("Request handled")
}

// panicMiddleware is a middleware for recovering from panics.
type panicMiddleware struct {
	Next   http.Handler
	logger *zap.Logger
}

// ServeHTTP provides panic recovery middleware for http requests.
func (m panicMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = errors.Errorf("%v", rec)
			}
			m.logger.With(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			).Error("panic recovered", zap.Error(err), zap.ByteString("stack", debug.Stack()))
			w.WriteHeader(http.StatusInternalServerError)
		}
	}()
	m.Next.ServeHTTP(w, r)
}

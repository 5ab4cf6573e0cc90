package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// loggingResponseWriter records the status code and size of a response
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
	written    bool
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if !lrw.written {
		lrw.statusCode = code
		lrw.written = true
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(data []byte) (int, error) {
	lrw.written = true
	n, err := lrw.ResponseWriter.Write(data)
	lrw.bytes += int64(n)
	return n, err
}

// ReadFrom hands the copy to the underlying writer when it can take it, which
// lets *http.response use sendfile for downloads.
func (lrw *loggingResponseWriter) ReadFrom(src io.Reader) (int64, error) {
	lrw.written = true
	var n int64
	var err error
	if rf, ok := lrw.ResponseWriter.(io.ReaderFrom); ok {
		n, err = rf.ReadFrom(src)
	} else {
		n, err = io.Copy(writerOnly{lrw.ResponseWriter}, src)
	}
	lrw.bytes += n
	return n, err
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// writerOnly hides any ReadFrom method so io.Copy cannot recurse.
type writerOnly struct {
	io.Writer
}

// loggingMiddleware tags every request with an id and logs it once it completes
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set(requestIDHeader, requestID)

		lrw := newLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r)

		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     lrw.statusCode,
			"bytes":      lrw.bytes,
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
		}).Info("request")
	})
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, code int, errName, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errName, Message: message, Code: code})
}

// errorHandlingMiddleware recovers from panics in handlers
func errorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.WithFields(log.Fields{
					"path":  r.URL.Path,
					"panic": err,
				}).Error("panic recovered")
				writeError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// ResponseWriter wraps http.ResponseWriter to capture status code and body size
type ResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int64
	wroteHeader bool
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

func (rw *ResponseWriter) StatusCode() int { return rw.statusCode }

func (rw *ResponseWriter) BytesWritten() int64 { return rw.bytes }

// HeaderWritten reports whether the status line has already gone out.
func (rw *ResponseWriter) HeaderWritten() bool { return rw.wroteHeader }

func (rw *ResponseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// writeError sends the {"error": message} body used for every failure.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

type requestIDKey struct{}

// maxRequestIDLength caps client-supplied ids so they cannot bloat logs.
const maxRequestIDLength = 128

// RequestIDMiddleware adds a unique request ID to each request context.
// The ID is either taken from the X-Request-ID header or generated.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(constants.HeaderXRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(constants.HeaderXRequestID, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id stored by RequestIDMiddleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

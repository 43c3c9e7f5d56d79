package middleware

import (
	"net/http"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// RequestSizeLimitMiddleware rejects requests whose declared body exceeds maxRequestSize.
// Bodies are never read by the routes, so the declared length is all that is checked.
func RequestSizeLimitMiddleware(maxRequestSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxRequestSize > 0 && r.ContentLength > maxRequestSize {
				writeError(w, http.StatusRequestEntityTooLarge, constants.MessageBodyTooLarge)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

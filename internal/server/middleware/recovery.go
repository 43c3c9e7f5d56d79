package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// RecoveryMiddleware turns a handler panic into the generic 500 response and
// logs the panic value with its stack. The server keeps serving afterwards.
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := NewResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("Panic recovered",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.String("error", fmt.Sprint(rec)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)

				// Too late to change the status once the header is out.
				if wrapped.HeaderWritten() {
					return
				}
				writeError(wrapped, http.StatusInternalServerError, constants.MessageInternalError)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

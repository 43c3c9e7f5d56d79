package server

import (
	"net/http"

	"github.com/leslieo2/tekton-pipeline-demo/internal/server/middleware"
)

// applyMiddleware wraps the dispatcher. Wrapping happens inside out, so the
// last wrapper applied runs first on every request.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	if s.config.Server.MaxRequestSize > 0 {
		handler = middleware.RequestSizeLimitMiddleware(s.config.Server.MaxRequestSize)(handler)
	}

	if s.config.Security.RateLimit.Enabled {
		handler = s.rateLimiter.Middleware(handler)
	}

	if s.config.Security.CORS.Enabled {
		handler = middleware.NewCORSMiddleware(s.config.Security.CORS).Handler(handler)
	}

	handler = middleware.SecurityHeadersMiddleware(s.config.Security.Headers)(handler)
	handler = middleware.RecoveryMiddleware(s.logger.Logger)(handler)
	handler = middleware.LoggingMiddleware(s.logger.Logger)(handler)
	handler = middleware.RequestIDMiddleware(handler)

	return handler
}

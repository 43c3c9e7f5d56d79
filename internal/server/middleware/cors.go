package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// CORSMiddleware adds CORS headers for allowed origins
type CORSMiddleware struct {
	allowedOrigins   []string
	allowedMethods   string
	allowedHeaders   string
	allowCredentials bool
	maxAge           string
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(cfg config.CORSConfig) *CORSMiddleware {
	c := &CORSMiddleware{
		allowedOrigins:   cfg.AllowedOrigins,
		allowedMethods:   strings.Join(cfg.AllowedMethods, ", "),
		allowedHeaders:   strings.Join(cfg.AllowedHeaders, ", "),
		allowCredentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return c
}

func (c *CORSMiddleware) allowOrigin(origin string) (string, bool) {
	if slices.Contains(c.allowedOrigins, origin) {
		return origin, true
	}
	if slices.Contains(c.allowedOrigins, "*") {
		// Browsers reject a wildcard together with credentials.
		if c.allowCredentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// Handler returns the CORS middleware handler
func (c *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get(constants.HeaderOrigin)
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, ok := c.allowOrigin(origin)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", constants.HeaderOrigin)
		h.Set(constants.HeaderAccessControlAllowOrigin, allowed)
		if c.allowCredentials {
			h.Set(constants.HeaderAccessControlAllowCredentials, "true")
		}

		// Preflight
		if r.Method == constants.MethodOPTIONS && r.Header.Get("Access-Control-Request-Method") != "" {
			if c.allowedMethods != "" {
				h.Set(constants.HeaderAccessControlAllowMethods, c.allowedMethods)
			}
			if c.allowedHeaders != "" {
				h.Set(constants.HeaderAccessControlAllowHeaders, c.allowedHeaders)
			}
			if c.maxAge != "" {
				h.Set(constants.HeaderAccessControlMaxAge, c.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package constants

import "time"

// Environment variable constants.
// PORT, APP_VERSION and NODE_ENV are the service's public contract and keep
// their conventional names.
const (
	EnvPort            = "PORT"
	EnvAppVersion      = "APP_VERSION"
	EnvEnvironment     = "NODE_ENV"
	EnvHost            = "HOST"
	EnvMetricsEnabled  = "METRICS_ENABLED"
	EnvMetricsPort     = "METRICS_PORT"
	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvMaxRequestSize  = "MAX_REQUEST_SIZE"
	EnvValidateResp    = "VALIDATE_RESPONSES"
	EnvTrustedProxies  = "TRUSTED_PROXIES"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvLogOutput       = "LOG_OUTPUT"
	EnvTracingEnabled  = "TRACING_ENABLED"
	EnvRateLimitEnable = "RATE_LIMIT_ENABLED"
	EnvRateLimitRPS    = "RATE_LIMIT_RPS"
	EnvCORSEnabled     = "CORS_ENABLED"
	EnvTLSEnabled      = "TLS_ENABLED"
	EnvTLSCertFile     = "TLS_CERT_FILE"
	EnvTLSKeyFile      = "TLS_KEY_FILE"
)

// Application defaults
const (
	DefaultPort        = "3000"
	DefaultMetricsPort = "9090"
	DefaultVersion     = "1.0.0"
	DefaultEnvironment = "development"
	DefaultEnvFile     = ".env"
	ServiceName        = "tekton-pipeline-demo"
)

// HTTP method constants
const (
	MethodGET     = "GET"
	MethodHEAD    = "HEAD"
	MethodOPTIONS = "OPTIONS"
)

// HTTP header constants
const (
	HeaderAuthorization  = "Authorization"
	HeaderContentType    = "Content-Type"
	HeaderContentLength  = "Content-Length"
	HeaderAccept         = "Accept"
	HeaderXRequestedWith = "X-Requested-With"
	HeaderXRequestID     = "X-Request-ID"
	HeaderOrigin         = "Origin"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
)

// Content type constants
const (
	ContentTypeJSON = "application/json; charset=utf-8"
)

// CORS headers
const (
	HeaderAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAccessControlMaxAge           = "Access-Control-Max-Age"
)

// Rate limiting headers
const (
	HeaderXRateLimitLimit     = "X-RateLimit-Limit"
	HeaderXRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderXRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter          = "Retry-After"
)

// Rate limiter internal constants
const (
	// RateLimitCleanupInterval is the interval for cleaning up rate limit cache
	RateLimitCleanupInterval = 5 * time.Minute
	// RateLimitMaxCacheSize is the maximum size of the rate limit cache
	RateLimitMaxCacheSize = 10000
)

// Route paths
const (
	PathRoot    = "/"
	PathHealth  = "/health"
	PathInfo    = "/api/info"
	PathMetrics = "/metrics"
)

// Client-facing error messages
const (
	MessageRouteNotFound   = "Route not found"
	MessageInternalError   = "Something went wrong!"
	MessageTooManyRequests = "Too many requests"
	MessageBodyTooLarge    = "Request body too large"
)

// UnmatchedRouteLabel is the metrics endpoint label for requests that match no route.
const UnmatchedRouteLabel = "unmatched"

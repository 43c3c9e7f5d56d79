package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// SecurityConfig groups the optional request guards. All of them only add
// headers or reject requests; none changes a successful response body.
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Headers   SecurityHeaders `json:"headers" yaml:"headers"`
	CORS      CORSConfig      `json:"cors" yaml:"cors"`
}

// RateLimitConfig contains rate limiting configuration.
// Clients are identified by the connection's remote address. Forwarding
// headers are honoured only when that address is in TrustedProxies.
type RateLimitConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	ByIP            *RateLimit    `json:"by_ip" yaml:"by_ip"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	MaxCacheSize    int           `json:"max_cache_size" yaml:"max_cache_size"`
	TrustedProxies  []string      `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// RateLimit is one token bucket: RequestsPerSecond refill, BurstSize capacity.
// WindowSize is what X-RateLimit-Reset advertises.
type RateLimit struct {
	RequestsPerSecond int           `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	WindowSize        time.Duration `json:"window_size" yaml:"window_size"`
}

// SecurityHeaders contains security headers configuration
type SecurityHeaders struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	HSTSMaxAge int  `json:"hsts_max_age" yaml:"hsts_max_age"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `json:"max_age" yaml:"max_age"`
}

// DefaultSecurityConfig returns default security configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		RateLimit: DefaultRateLimitConfig(),
		Headers:   DefaultSecurityHeaders(),
		CORS:      DefaultCORSConfig(),
	}
}

// DefaultRateLimit returns default rate limit configuration for a specific entity
func DefaultRateLimit() *RateLimit {
	return &RateLimit{
		RequestsPerSecond: 60,
		BurstSize:         120,
		WindowSize:        time.Minute,
	}
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:         false,
		ByIP:            DefaultRateLimit(),
		CleanupInterval: constants.RateLimitCleanupInterval,
		MaxCacheSize:    constants.RateLimitMaxCacheSize,
	}
}

// DefaultSecurityHeaders returns default security headers
func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		Enabled:    true,
		HSTSMaxAge: 31536000, // 1 year
	}
}

// DefaultCORSConfig returns default CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:          false,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{constants.MethodGET, constants.MethodHEAD, constants.MethodOPTIONS},
		AllowedHeaders:   []string{constants.HeaderContentType, constants.HeaderAuthorization, constants.HeaderAccept, constants.HeaderXRequestedWith},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}
}

// Validate aggregates the errors of every security section.
func (s *SecurityConfig) Validate() error {
	return errors.Join(
		wrap("rate_limit", s.RateLimit.Validate()),
		wrap("headers", s.Headers.Validate()),
		wrap("cors", s.CORS.Validate()),
	)
}

// wrap prefixes err with the config section it came from; nil stays nil.
func wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}

// Validate only inspects the limit when rate limiting is switched on.
func (r *RateLimitConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	var errs []error
	if r.ByIP == nil {
		errs = append(errs, errors.New("by_ip must be set when rate limiting is enabled"))
	} else {
		errs = append(errs, wrap("by_ip", r.ByIP.Validate()))
	}
	if r.CleanupInterval < 0 {
		errs = append(errs, errors.New("cleanup_interval must not be negative"))
	}
	if r.MaxCacheSize < 0 {
		errs = append(errs, errors.New("max_cache_size must not be negative"))
	}
	if _, err := ParseTrustedProxies(r.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseTrustedProxies accepts single addresses and CIDR ranges.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var (
		prefixes []netip.Prefix
		errs     []error
	)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				errs = append(errs, fmt.Errorf("trusted_proxies: %w", err))
				continue
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("trusted_proxies: %w", err))
			continue
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, errors.Join(errs...)
}

func (c *CORSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("allowed_origins must not be empty"))
	}
	if len(c.AllowedMethods) == 0 {
		errs = append(errs, errors.New("allowed_methods must not be empty"))
	}
	if c.MaxAge < 0 {
		errs = append(errs, errors.New("max_age must not be negative"))
	}
	return errors.Join(errs...)
}

func (h *SecurityHeaders) Validate() error {
	if h.Enabled && h.HSTSMaxAge < 0 {
		return errors.New("hsts_max_age must not be negative")
	}
	return nil
}

func (l *RateLimit) Validate() error {
	var errs []error
	if l.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests_per_second must be positive"))
	}
	if l.BurstSize <= 0 {
		errs = append(errs, errors.New("burst_size must be positive"))
	}
	if l.WindowSize <= 0 {
		errs = append(errs, errors.New("window_size must be positive"))
	}
	return errors.Join(errs...)
}

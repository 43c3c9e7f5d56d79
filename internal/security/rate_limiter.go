package security

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/leslieo2/tekton-pipeline-demo/internal/api"
	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limiters *cache.Cache
	config   config.RateLimitConfig
	clock    Clock
	trusted  []netip.Prefix

	stop      chan struct{}
	closeOnce sync.Once
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Status describes a client's bucket after a request was counted.
type Status struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := newRateLimiter(cfg, RealClock{})
	if cfg.Enabled {
		go rl.periodicCleanup(rl.config.MaxCacheSize)
	}
	return rl
}

func newRateLimiter(cfg config.RateLimitConfig, clock Clock) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = constants.RateLimitCleanupInterval
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = constants.RateLimitMaxCacheSize
	}
	if cfg.ByIP == nil {
		cfg.ByIP = config.DefaultRateLimit()
	}
	// Validate has already rejected malformed entries.
	trusted, _ := config.ParseTrustedProxies(cfg.TrustedProxies)

	return &RateLimiter{
		limiters: cache.New(cfg.CleanupInterval, cfg.CleanupInterval*2),
		config:   cfg,
		clock:    clock,
		trusted:  trusted,
		stop:     make(chan struct{}),
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.stop)
	})
}

// periodicCleanup bounds the number of tracked clients so a flood of
// distinct addresses cannot exhaust memory.
func (rl *RateLimiter) periodicCleanup(maxSize int) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evict(maxSize)
		}
	}
}

// evict drops arbitrary entries, plus 10% headroom, once the cache is over maxSize.
// Map iteration order is unspecified, which is good enough for picking victims.
func (rl *RateLimiter) evict(maxSize int) int {
	currentSize := rl.limiters.ItemCount()
	if currentSize <= maxSize {
		return 0
	}

	toRemove := currentSize - maxSize + maxSize/10
	removed := 0
	for key := range rl.limiters.Items() {
		if removed >= toRemove {
			break
		}
		rl.limiters.Delete(key)
		removed++
	}
	return removed
}

func (rl *RateLimiter) limiterFor(identifier string) *rate.Limiter {
	if item, found := rl.limiters.Get(identifier); found {
		return item.(*rate.Limiter)
	}

	limit := rl.config.ByIP
	limiter := rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), limit.BurstSize)
	rl.limiters.Set(identifier, limiter, cache.DefaultExpiration)
	return limiter
}

// Allow counts one request for identifier and reports whether it fits the bucket.
func (rl *RateLimiter) Allow(identifier string) (bool, Status) {
	limit := rl.config.ByIP
	now := rl.clock.Now()
	limiter := rl.limiterFor(identifier)

	allowed := limiter.AllowN(now, 1)
	tokens := limiter.TokensAt(now)

	status := Status{
		Limit:     limit.BurstSize,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Reset:     now.Add(limit.WindowSize),
	}
	if !allowed {
		// time until one whole token is back
		wait := (1 - tokens) / float64(limit.RequestsPerSecond)
		status.RetryAfter = time.Duration(math.Ceil(wait)) * time.Second
		if status.RetryAfter < time.Second {
			status.RetryAfter = time.Second
		}
	}
	return allowed, status
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled || rl.shouldSkipRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		allowed, status := rl.Allow("ip:" + rl.getClientIP(r))

		w.Header().Set(constants.HeaderXRateLimitLimit, strconv.Itoa(status.Limit))
		w.Header().Set(constants.HeaderXRateLimitRemaining, strconv.Itoa(status.Remaining))
		w.Header().Set(constants.HeaderXRateLimitReset, strconv.FormatInt(status.Reset.Unix(), 10))

		if !allowed {
			w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(int(status.RetryAfter.Seconds())))
			w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": constants.MessageTooManyRequests})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP returns the peer address. Forwarding headers are read only
// when the peer is a trusted proxy, since any client can set them.
func (rl *RateLimiter) getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !rl.isTrustedProxy(host) {
		return host
	}

	if xff := r.Header.Get(constants.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get(constants.HeaderXRealIP)); xri != "" {
		return xri
	}

	return host
}

func (rl *RateLimiter) isTrustedProxy(host string) bool {
	if len(rl.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range rl.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Health checks stay reachable for orchestrators even when a client is throttled.
func (rl *RateLimiter) shouldSkipRateLimit(path string) bool {
	return api.CanonicalPath(path) == constants.PathHealth
}

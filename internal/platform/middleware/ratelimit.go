package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dicom-tools/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Costs charges routes more than one token, keyed by method and route
	// pattern ("POST /api/v1/sessions"). Unlisted routes cost one token.
	Costs map[string]float64
	// IdleTTL forgets callers not seen for this long. Zero keeps them.
	IdleTTL time.Duration
}

// SessionCosts weighs the calls that parse and rewrite a whole DICOM file.
func SessionCosts() map[string]float64 {
	return map[string]float64{
		"POST /api/v1/sessions":               4,
		"POST /api/v1/sessions/:id/anonymize": 4,
	}
}

func (cfg RateLimitConfig) cost(c echo.Context) float64 {
	if w, ok := cfg.Costs[c.Request().Method+" "+c.Path()]; ok && w > 0 {
		return w
	}
	return 1
}

// callerKey identifies the bucket of a request: the authenticated subject,
// or the client address for public routes.
func callerKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// limiter keeps one token bucket per caller.
type limiter struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
}

// take charges cost tokens to key. When the bucket is short it returns false
// and how long until enough tokens are back.
func (l *limiter) take(key string, cost float64) (ok bool, remaining float64, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	burst := float64(l.cfg.BurstSize)
	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.seen).Seconds()*l.cfg.RequestsPerSecond)
	b.seen = now

	if b.tokens >= cost {
		b.tokens -= cost
		return true, b.tokens, 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, b.tokens, time.Second
	}
	return false, b.tokens, time.Duration((cost - b.tokens) / l.cfg.RequestsPerSecond * float64(time.Second))
}

// sweep drops idle buckets at most once per IdleTTL. Callers hold mu.
func (l *limiter) sweep(now time.Time) {
	if l.cfg.IdleTTL <= 0 || now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit returns a rate limiting middleware. Register it after the auth
// middleware so authenticated callers get their own bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiter(cfg))
}

func rateLimit(l *limiter) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(l.cfg.RequestsPerSecond, 'f', -1, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, remaining, wait := l.take(callerKey(c), l.cfg.cost(c))

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

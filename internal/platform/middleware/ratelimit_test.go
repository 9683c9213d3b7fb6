package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dicom-tools/internal/platform/auth"
)

func asUser(req *http.Request, uid string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, uid))
}

// clockedLimiter returns a limiter whose clock only moves when the test
// advances it.
func clockedLimiter(cfg RateLimitConfig) (*limiter, *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(cfg)
	l.now = func() time.Time { return now }
	return l, &now
}

// call sends one request for route through the limiter and returns the
// recorder and the handler error.
func call(l *limiter, method, route string, uid string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, route, nil)
	if uid != "" {
		req = asUser(req, uid)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(route)
	err := rateLimit(l)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, err
}

func wantTooMany(t *testing.T, err error) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_WithinBurst(t *testing.T) {
	l, _ := clockedLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec, err := call(l, http.MethodGet, "/api/v1/presets", "alice")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
		if got, want := rec.Header().Get("X-RateLimit-Remaining"), []string{"4", "3", "2", "1", "0"}[i]; got != want {
			t.Errorf("request %d: expected X-RateLimit-Remaining %s, got %q", i+1, want, got)
		}
	}

	rec, err := call(l, http.MethodGet, "/api/v1/presets", "alice")
	wantTooMany(t, err)
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After 1, got %q", got)
	}
}

func TestRateLimit_Refills(t *testing.T) {
	l, now := clockedLimiter(RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1})

	if _, err := call(l, http.MethodGet, "/api/v1/presets", "alice"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := call(l, http.MethodGet, "/api/v1/presets", "alice")
	wantTooMany(t, err)

	*now = now.Add(500 * time.Millisecond)
	if _, err := call(l, http.MethodGet, "/api/v1/presets", "alice"); err != nil {
		t.Fatalf("after refill: %v", err)
	}
}

func TestRateLimit_SessionWritesCostMore(t *testing.T) {
	l, _ := clockedLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 5, Costs: SessionCosts()})

	if _, err := call(l, http.MethodPost, "/api/v1/sessions", "alice"); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	rec, err := call(l, http.MethodPost, "/api/v1/sessions/:id/anonymize", "alice")
	wantTooMany(t, err)
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Errorf("expected Retry-After 3 for a cost of 4 with 1 token left, got %q", got)
	}

	// The remaining token still covers a download.
	if _, err := call(l, http.MethodGet, "/api/v1/sessions/:id/file", "alice"); err != nil {
		t.Fatalf("download: %v", err)
	}
}

func TestRateLimit_PerCallerBuckets(t *testing.T) {
	l, _ := clockedLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := call(l, http.MethodGet, "/api/v1/presets", "alice"); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	_, err := call(l, http.MethodGet, "/api/v1/presets", "alice")
	wantTooMany(t, err)

	if _, err := call(l, http.MethodGet, "/api/v1/presets", "bob"); err != nil {
		t.Fatalf("bob first request: %v", err)
	}
	if _, err := call(l, http.MethodGet, "/health", ""); err != nil {
		t.Fatalf("anonymous request: %v", err)
	}
	if got := l.len(); got != 3 {
		t.Errorf("expected 3 buckets (alice, bob, client address), got %d", got)
	}
}

func TestRateLimit_ForgetsIdleCallers(t *testing.T) {
	l, now := clockedLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})

	for _, uid := range []string{"alice", "bob", "carol"} {
		if _, err := call(l, http.MethodGet, "/api/v1/presets", uid); err != nil {
			t.Fatalf("%s: %v", uid, err)
		}
	}
	*now = now.Add(2 * time.Minute)
	if _, err := call(l, http.MethodGet, "/api/v1/presets", "dave"); err != nil {
		t.Fatalf("dave: %v", err)
	}
	if got := l.len(); got != 1 {
		t.Errorf("expected idle buckets to be dropped, %d left", got)
	}
}

func TestRateLimit_ZeroRate(t *testing.T) {
	l, _ := clockedLimiter(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})

	if _, err := call(l, http.MethodGet, "/api/v1/presets", "alice"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	rec, err := call(l, http.MethodGet, "/api/v1/presets", "alice")
	wantTooMany(t, err)
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After 1 with no refill, got %q", got)
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}))
	e.GET("/api/v1/presets", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected [200 429], got %v", codes)
	}
}

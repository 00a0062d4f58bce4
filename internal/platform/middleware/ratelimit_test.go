package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/emhr/emhr/internal/platform/db"
)

func rateLimitedEcho(cfg RateLimitConfig) *echo.Echo {
	e := echo.New()
	e.Use(RateLimit(cfg))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

func doRequest(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := rateLimitedEcho(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 5})
	for i := 0; i < 5; i++ {
		rec := doRequest(e, "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "1" {
			t.Errorf("expected X-RateLimit-Limit 1, got %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := rateLimitedEcho(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	doRequest(e, "10.0.0.2")
	doRequest(e, "10.0.0.2")

	rec := doRequest(e, "10.0.0.2")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	e := rateLimitedEcho(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	if rec := doRequest(e, "10.0.0.3"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := doRequest(e, "10.0.0.3"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := doRequest(e, "10.0.0.4"); rec.Code != http.StatusOK {
		t.Fatalf("other IP: expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_TenantScopedKey(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}
	mw := RateLimit(cfg)
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e := echo.New()

	run := func(tenant string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.5:1"
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set(db.AuthTenantKey, tenant)
		return h(c)
	}

	if err := run("acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := run("globex"); err != nil {
		t.Fatalf("different tenant should have its own bucket: %v", err)
	}
	if err := run("acme"); err == nil {
		t.Fatal("expected acme to be limited")
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 || cfg.BurstSize != 100 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

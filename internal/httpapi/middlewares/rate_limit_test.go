package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mediahub/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

func fixedClock() time.Time { return time.Unix(1_700_000_000, 0).UTC() }

func newLimitedEcho(cfg ratelimit.Config) *echo.Echo {
	e := echo.New()
	e.Use(newRateLimitMiddlewareWithClock(cfg, fixedClock))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/api/media/:user_id/:media_id", ok)
	e.GET("/api/media/:user_id/:media_id/sas", ok)
	e.PUT("/api/media/:user_id/:media_id", ok)
	return e
}

func doRequest(e *echo.Echo, method, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware_IPBucket(t *testing.T) {
	t.Parallel()

	e := newLimitedEcho(ratelimit.Config{Window: time.Minute, ReadIP: 1})

	rec1 := doRequest(e, http.MethodGet, "/api/media/u1/m1", "5.6.7.8:4321")
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec1.Code)
	}
	if rec1.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("X-RateLimit-Limit = %q, want 1", rec1.Header().Get("X-RateLimit-Limit"))
	}

	rec2 := doRequest(e, http.MethodGet, "/api/media/u2/m1", "5.6.7.8:4321")
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After should be set on 429")
	}
	if rec2.Header().Get("RateLimit-Reset") == "" || rec2.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatalf("reset headers should be present")
	}

	if rec := doRequest(e, http.MethodGet, "/api/media/u1/m1", "9.9.9.9:1"); rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware_OwnerBucketAcrossIPs(t *testing.T) {
	t.Parallel()

	e := newLimitedEcho(ratelimit.Config{Window: time.Minute, SignIP: 10, SignOwner: 2})

	for i, addr := range []string{"1.1.1.1:1", "2.2.2.2:1"} {
		rec := doRequest(e, http.MethodGet, "/api/media/u1/m1/sas", addr)
		if rec.Code != http.StatusOK {
			t.Fatalf("request #%d status = %d, want 200", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("request #%d X-RateLimit-Limit = %q, want owner limit 2", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	if rec := doRequest(e, http.MethodGet, "/api/media/u1/m1/sas", "3.3.3.3:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third sign for u1 status = %d, want 429", rec.Code)
	}
	if rec := doRequest(e, http.MethodGet, "/api/media/u2/m1/sas", "3.3.3.3:1"); rec.Code != http.StatusOK {
		t.Fatalf("sign for u2 status = %d, want 200", rec.Code)
	}
}

func TestRequestScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		path   string
		want   ratelimit.Scope
	}{
		{http.MethodGet, "/api/media", ratelimit.ScopeRead},
		{http.MethodPost, "/api/media", ratelimit.ScopeWrite},
		{http.MethodDelete, "/api/media/:user_id/:media_id", ratelimit.ScopeWrite},
		{http.MethodGet, "/api/media/:user_id/:media_id/sas", ratelimit.ScopeSign},
	}
	for _, tt := range tests {
		if got := requestScope(tt.method, tt.path); got != tt.want {
			t.Fatalf("requestScope(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediahub/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

// NewRateLimitMiddleware limits requests per client IP and, on routes that
// name an owner, per owner. A request must fit both buckets.
func NewRateLimitMiddleware(cfg ratelimit.Config) echo.MiddlewareFunc {
	return newRateLimitMiddlewareWithClock(cfg, time.Now)
}

func newRateLimitMiddlewareWithClock(cfg ratelimit.Config, now func() time.Time) echo.MiddlewareFunc {
	limiter := ratelimit.New(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope := requestScope(c.Request().Method, c.Path())
			at := now().UTC()

			result := limiter.Take(at, scope, ratelimit.BucketIP, clientIP(c))
			if owner := strings.TrimSpace(c.Param("user_id")); owner != "" && result.Allowed {
				ownerResult := limiter.Take(at, scope, ratelimit.BucketOwner, owner)
				if ownerResult.Limit > 0 && (!ownerResult.Allowed || result.Limit == 0 || ownerResult.Remaining < result.Remaining) {
					result = ownerResult
				}
			}
			setRateLimitHeaders(c.Response().Header(), result)

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.ResetIn, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":    "rate limit exceeded",
					"category": "rate_limited",
				})
			}
			return next(c)
		}
	}
}

func requestScope(method, routePath string) ratelimit.Scope {
	if strings.HasSuffix(routePath, "/sas") {
		return ratelimit.ScopeSign
	}
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ratelimit.ScopeRead
	default:
		return ratelimit.ScopeWrite
	}
}

func clientIP(c echo.Context) string {
	ip := strings.TrimSpace(c.RealIP())
	if ip == "" {
		ip = clientIPFromRemoteAddr(c.Request().RemoteAddr)
	}
	if ip == "" {
		ip = "unknown"
	}
	return ip
}

func setRateLimitHeaders(header http.Header, result ratelimit.Result) {
	if result.Limit <= 0 {
		return
	}
	limit := strconv.Itoa(result.Limit)
	remaining := strconv.Itoa(result.Remaining)
	resetEpoch := strconv.FormatInt(result.ResetAt, 10)
	resetDelay := strconv.FormatInt(result.ResetIn, 10)

	header.Set("X-RateLimit-Limit", limit)
	header.Set("X-RateLimit-Remaining", remaining)
	header.Set("X-RateLimit-Reset", resetEpoch)

	header.Set("RateLimit-Limit", limit)
	header.Set("RateLimit-Remaining", remaining)
	header.Set("RateLimit-Reset", resetDelay)
}

func clientIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return strings.TrimSpace(host)
}

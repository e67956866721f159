package httpapi

import (
	"net/http"
	"strconv"

	"mediahub/internal/config"
	"mediahub/internal/httpapi/handlers"
	"mediahub/internal/httpapi/middlewares"
	"mediahub/internal/ratelimit"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// base64 inflates payloads by 4/3; the rest covers the JSON envelope.
const bodyOverheadBytes = 64 << 10

type API struct {
	cfg     config.Config
	log     zerolog.Logger
	handler *handlers.Handler
}

func New(cfg config.Config, logger zerolog.Logger, opts handlers.Options) *API {
	if opts.InternalToken == "" {
		opts.InternalToken = cfg.InternalToken
	}
	opts.Logger = logger
	return &API{
		cfg:     cfg,
		log:     logger,
		handler: handlers.New(opts),
	}
}

func (a *API) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler(a.log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middlewares.NewRequestLogger(a.log))
	e.Use(middlewares.NewMetricsMiddleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: a.cfg.CORSAllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderAccept,
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			"X-Internal-Token",
		},
		ExposeHeaders: []string{
			"RateLimit-Limit",
			"RateLimit-Remaining",
			"RateLimit-Reset",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
			echo.HeaderXRequestID,
		},
		MaxAge: 600,
	}))
	if a.cfg.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
			Limit: bodyLimit(a.cfg.MaxUploadBytes),
		}))
	}
	if a.cfg.RateLimitEnabled {
		e.Use(middlewares.NewRateLimitMiddleware(a.rateLimitConfig()))
	}

	a.registerRoutes(e)
	return e
}

func (a *API) rateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:     a.cfg.RateLimitWindow,
		ReadIP:     a.cfg.RateLimitReadIP,
		WriteIP:    a.cfg.RateLimitWriteIP,
		WriteOwner: a.cfg.RateLimitWriteOwn,
		SignIP:     a.cfg.RateLimitSignIP,
		SignOwner:  a.cfg.RateLimitSignOwn,
	}
}

// bodyLimit returns the echo size string for a base64 JSON upload of at
// most maxPayload bytes.
func bodyLimit(maxPayload int64) string {
	encoded := (maxPayload+2)/3*4 + bodyOverheadBytes
	return strconv.FormatInt(encoded, 10) + "B"
}

package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediahub/internal/service"
	"mediahub/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const CategoryRateLimited = "rate_limited"

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

// ErrorHandler renders every error as {"error", "category"}.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := err.Error()
		var internal error = err
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			message = fmt.Sprint(he.Message)
			internal = he.Internal
		} else {
			code = statusForCategory(service.Category(err))
		}
		category := categoryFor(code, internal)

		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Str("category", category).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, errorBody{Error: message, Category: category})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func statusForCategory(category string) int {
	switch category {
	case service.CategoryValidation:
		return http.StatusBadRequest
	case service.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func categoryFor(code int, internal error) string {
	switch {
	case code == http.StatusNotFound:
		return service.CategoryNotFound
	case code == http.StatusTooManyRequests:
		return CategoryRateLimited
	case code == http.StatusUnauthorized:
		return "unauthorized"
	case code == http.StatusForbidden:
		return "forbidden"
	case code >= http.StatusInternalServerError:
		if internal != nil && errors.Is(internal, service.ErrIntegrity) {
			return service.CategoryIntegrity
		}
		return service.CategoryBackend
	default:
		return service.CategoryValidation
	}
}

// queryOptionalInt returns nil when key is absent and an error when it is
// present but not an integer.
func queryOptionalInt(c echo.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.QueryParam(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &v, nil
}

func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Internal-Token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type mediaView struct {
	UserID      string `json:"user_id"`
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Caption     string `json:"caption"`
	BlobName    string `json:"blobName"`
	BlobURL     string `json:"blobUrl"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toMediaView(rec store.Record) mediaView {
	return mediaView{
		UserID:      rec.OwnerID,
		ID:          rec.MediaID,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		Caption:     rec.Caption,
		BlobName:    rec.BlobKey,
		BlobURL:     rec.BlobLocation,
		CreatedAt:   formatTime(rec.CreatedAt),
		UpdatedAt:   formatTime(rec.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

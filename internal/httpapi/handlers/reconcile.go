package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireInternalToken guards internal routes. With no token configured the
// routes are open.
func (h *Handler) RequireInternalToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.internalToken == "" {
			return next(c)
		}
		token := bearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		if !tokenMatches(token, h.internalToken) {
			return echo.NewHTTPError(http.StatusForbidden, "invalid internal token")
		}
		return next(c)
	}
}

func (h *Handler) TriggerReconcile(c echo.Context) error {
	if h.reconcile == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reconcile not configured")
	}
	if !h.reconcile.Start() {
		return c.JSON(http.StatusOK, map[string]any{
			"ok":      true,
			"message": "reconcile already running",
		})
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"ok":      true,
		"message": "reconcile started",
	})
}

func (h *Handler) GetReconcileStatus(c echo.Context) error {
	if h.reconcile == nil {
		return c.JSON(http.StatusOK, map[string]any{
			"configured": false,
			"running":    false,
		})
	}

	status := h.reconcile.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"configured": true,
		"running":    status.Running,
		"lastRunId":  status.LastRunID,
		"lastResult": status.LastResult,
		"lastError":  status.LastError,
	})
}

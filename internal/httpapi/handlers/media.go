package handlers

import (
	"encoding/base64"
	"mime"
	"net/http"
	"strings"

	"mediahub/internal/service"

	"github.com/labstack/echo/v4"
)

type createMediaRequest struct {
	UserID      string `json:"user_id"`
	Caption     string `json:"caption"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
}

func (h *Handler) CreateMedia(c echo.Context) error {
	var req createMediaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.DataBase64) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields: user_id, data_base64")
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.DataBase64))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "data_base64 is not valid base64")
	}

	res, err := h.svc.Create(c.Request().Context(), service.CreateInput{
		OwnerID:     req.UserID,
		Caption:     req.Caption,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Payload:     payload,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id":      res.MediaID,
		"user_id": res.OwnerID,
		"blobUrl": res.BlobLocation,
	})
}

func (h *Handler) ListMedia(c echo.Context) error {
	recs, err := h.svc.List(c.Request().Context(), c.QueryParam("user_id"))
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]mediaView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toMediaView(rec))
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetMedia(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("user_id"), c.Param("media_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, toMediaView(rec))
}

func (h *Handler) UpdateMedia(c echo.Context) error {
	var req struct {
		Caption  *string `json:"caption"`
		Filename *string `json:"filename"`
	}
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	ownerID, mediaID := c.Param("user_id"), c.Param("media_id")
	err := h.svc.Update(c.Request().Context(), ownerID, mediaID, service.UpdateInput{
		Caption:  req.Caption,
		Filename: req.Filename,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"updated": true,
		"user_id": ownerID,
		"id":      mediaID,
	})
}

func (h *Handler) DeleteMedia(c echo.Context) error {
	ownerID, mediaID := c.Param("user_id"), c.Param("media_id")
	if err := h.svc.Delete(c.Request().Context(), ownerID, mediaID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"deleted": true,
		"user_id": ownerID,
		"id":      mediaID,
	})
}

func (h *Handler) IssueAccessURL(c echo.Context) error {
	minutes, err := queryOptionalInt(c, "minutes")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	grant, err := h.svc.IssueAccessURL(c.Request().Context(), service.AccessRequest{
		OwnerID:         c.Param("user_id"),
		MediaID:         c.Param("media_id"),
		ValidityMinutes: minutes,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sasUrl":    grant.URL,
		"expiresOn": formatTime(grant.ExpiresAt),
	})
}

func (h *Handler) GetMediaContent(c echo.Context) error {
	p, err := h.svc.Fetch(c.Request().Context(), c.Param("user_id"), c.Param("media_id"))
	if err != nil {
		return mapServiceError(err)
	}
	if disposition := mime.FormatMediaType("inline", map[string]string{"filename": p.Filename}); disposition != "" {
		c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	}
	return c.Blob(http.StatusOK, p.ContentType, p.Body)
}

package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"mediahub/internal/storage"

	"github.com/labstack/echo/v4"
)

// DownloadBlob serves a payload to the holder of a signed URL. The grant
// is bound to the container and key in the path.
func (h *Handler) DownloadBlob(c echo.Context) error {
	if !h.ServesBlobs() {
		return echo.NewHTTPError(http.StatusNotFound, "blob downloads are not served here")
	}

	container := c.Param("container")
	key := c.Param("*")
	if c.Request().URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(key); err == nil {
			key = unescaped
		}
	}
	if container != h.blobs.Container() || !storage.ValidKey(key) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	if err := h.verifier.Verify(container, key, c.QueryParam("sig")); err != nil {
		h.log.Debug().Err(err).Str("blob_key", key).Msg("signed download rejected")
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}

	obj, err := h.blobs.Get(c.Request().Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "blob not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "read blob").SetInternal(err)
	}
	return c.Blob(http.StatusOK, obj.ContentType, obj.Body)
}

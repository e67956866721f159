package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *API) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"ok":        true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	a.registerMediaRoutes(e.Group("/api/media"))
	a.registerBlobRoutes(e)
	a.registerInternalRoutes(e)
}

func (a *API) registerMediaRoutes(g *echo.Group) {
	g.POST("", a.handler.CreateMedia)
	g.GET("", a.handler.ListMedia)
	g.GET("/:user_id/:media_id", a.handler.GetMedia)
	g.PUT("/:user_id/:media_id", a.handler.UpdateMedia)
	g.DELETE("/:user_id/:media_id", a.handler.DeleteMedia)
	g.GET("/:user_id/:media_id/sas", a.handler.IssueAccessURL)
	g.GET("/:user_id/:media_id/content", a.handler.GetMediaContent)
}

func (a *API) registerBlobRoutes(e *echo.Echo) {
	if !a.handler.ServesBlobs() {
		return
	}
	e.GET("/blobs/:container/*", a.handler.DownloadBlob)
	e.HEAD("/blobs/:container/*", a.handler.DownloadBlob)
}

func (a *API) registerInternalRoutes(e *echo.Echo) {
	internal := e.Group("/api/internal", a.handler.RequireInternalToken)
	internal.GET("/reconcile", a.handler.GetReconcileStatus)
	internal.POST("/reconcile", a.handler.TriggerReconcile)
}

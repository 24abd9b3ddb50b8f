package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/mindmap"
	"github.com/zaldivarmena/mindy/pkg/render"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/labstack/echo/v4"
)

const exportTimeout = 30 * time.Second

type exportResponse struct {
	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
	URL     string `json:"url,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
}

func ExportMindMapHandler(c echo.Context) error {
	courseID := c.Param("course_id")
	if courseID == "" {
		return c.JSON(http.StatusBadRequest, exportResponse{Message: "Invalid request params"})
	}
	app := c.(*middleware.AppContext).App

	width, err := viewportWidth(c, app)
	if err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{Message: err.Error()})
	}
	defRatio := app.PixelRatio
	if defRatio <= 0 {
		defRatio = 2
	}
	ratio, err := queryFloat(c, "pixel_ratio", defRatio, 0.5, 4)
	if err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{Message: err.Error()})
	}
	download, _ := strconv.ParseBool(c.QueryParam("download"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), exportTimeout)
	defer cancel()

	record, err := app.Store.GetStudyContent(ctx, courseID, string(ai.StudyTypeMindMap))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, exportResponse{Message: "Mind map not found"})
		}
		logger.Error("[Export] Failed to load mind map", "course", courseID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{Message: "Internal server error"})
	}
	if len(record.Content) == 0 {
		return c.JSON(http.StatusConflict, exportResponse{Message: "Mind map is still being generated"})
	}

	g, nrep := mindmap.NormalizeWithReport(record.Content)
	app.Metrics.ObserveNormalize(nrep)
	surface := render.NewLayoutSurface(g, mindmap.LayoutOptions{ViewportWidth: width})

	png, err := render.ExportRaster(ctx, surface, render.ExportOptions{PixelRatio: ratio})
	app.Metrics.ObserveExport(len(png), err)
	if err != nil {
		logger.Error("[Export] Raster export failed", "course", courseID, "err", err)
		if errors.Is(err, render.ErrSurfaceUnavailable) {
			return c.JSON(http.StatusUnprocessableEntity, exportResponse{Message: "Nothing to export"})
		}
		return c.JSON(http.StatusInternalServerError, exportResponse{Message: "Export failed"})
	}
	app.Metrics.ObserveLayout(surface.Report())

	if download || app.Exports == nil {
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="mindmap.png"`)
		return c.Blob(http.StatusOK, "image/png", png)
	}

	key, err := app.Exports.PutExport(ctx, courseID, png)
	if err != nil {
		logger.Error("[Export] Upload failed", "course", courseID, "err", err)
		return c.JSON(http.StatusBadGateway, exportResponse{Message: "Failed to store export"})
	}
	url, err := app.Exports.DownloadLink(ctx, key)
	if err != nil {
		logger.Error("[Export] Presign failed", "key", key, "err", err)
		return c.JSON(http.StatusBadGateway, exportResponse{Message: "Failed to create download link"})
	}

	logger.Info("[Export] Mind map exported", "course", courseID, "key", key, "bytes", len(png))
	return c.JSON(http.StatusOK, exportResponse{
		Message: "Mind map exported",
		Key:     key,
		URL:     url,
		Bytes:   len(png),
	})
}

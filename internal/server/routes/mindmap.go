package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/mindmap"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/labstack/echo/v4"
)

const (
	minViewportWidth = 320
	maxViewportWidth = 8000
)

var errBadQuery = errors.New("invalid query parameter")

// queryFloat reads an optional float query parameter within [lo, hi].
func queryFloat(c echo.Context, name string, def, lo, hi float64) (float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be between %g and %g", errBadQuery, name, lo, hi)
	}
	return v, nil
}

func viewportWidth(c echo.Context, app *middleware.App) (float64, error) {
	def := app.ViewportWidth
	if def <= 0 {
		def = mindmap.DefaultLayoutOptions().ViewportWidth
	}
	return queryFloat(c, "width", def, minViewportWidth, maxViewportWidth)
}

// positionedMindMap normalizes stored content and lays it out.
func positionedMindMap(app *middleware.App, content json.RawMessage, width float64) (*mindmap.Graph, mindmap.NormalizeReport, mindmap.LayoutReport) {
	g, nrep := mindmap.NormalizeWithReport(content)
	app.Metrics.ObserveNormalize(nrep)
	if nrep.Fallback {
		logger.Debug("[MindMap] Stored content replaced by fallback graph", "reason", nrep.Reason)
	}

	out, lrep := mindmap.LayoutWithOptions(g, mindmap.LayoutOptions{ViewportWidth: width})
	app.Metrics.ObserveLayout(lrep)
	if lrep.Fallback {
		logger.Warn("[MindMap] Layout fell back to star graph", "reason", lrep.Reason)
	}
	return out, nrep, lrep
}

func normalizeWarnings(report mindmap.NormalizeReport) []string {
	var warnings []string
	for _, e := range report.DroppedEdges {
		warnings = append(warnings, fmt.Sprintf("dropped edge %s: %s -> %s references a missing node", e.ID, e.Source, e.Target))
	}
	for to, from := range report.RenamedNodes {
		warnings = append(warnings, fmt.Sprintf("duplicate node id %s renamed to %s", from, to))
	}
	if report.Fallback {
		warnings = append(warnings, "content is not a mind map, showing the default map")
	}
	return warnings
}

type mindMapResponse struct {
	Message    string                  `json:"message,omitempty"`
	CourseID   string                  `json:"course_id"`
	Status     store.Status            `json:"status"`
	Graph      *mindmap.Graph          `json:"graph,omitempty"`
	RootID     string                  `json:"root_id,omitempty"`
	Normalize  mindmap.NormalizeReport `json:"normalize"`
	Layout     mindmap.LayoutReport    `json:"layout"`
	Warnings   []string                `json:"warnings,omitempty"`
	Regenerate bool                    `json:"regenerate"`
}

func GetMindMapHandler(c echo.Context) error {
	courseID := c.Param("course_id")
	if courseID == "" {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	app := c.(*middleware.AppContext).App
	width, err := viewportWidth(c, app)
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: err.Error()})
	}

	record, err := app.Store.GetStudyContent(c.Request().Context(), courseID, string(ai.StudyTypeMindMap))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, messageResponse{Message: "Mind map not found"})
		}
		logger.Error("[MindMap] Failed to load mind map", "course", courseID, "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	if len(record.Content) == 0 {
		return c.JSON(http.StatusAccepted, mindMapResponse{
			Message:  "Mind map is still being generated",
			CourseID: courseID,
			Status:   record.Status,
		})
	}

	g, nrep, lrep := positionedMindMap(app, record.Content, width)
	return c.JSON(http.StatusOK, mindMapResponse{
		CourseID:   courseID,
		Status:     record.Status,
		Graph:      g,
		RootID:     lrep.RootID,
		Normalize:  nrep,
		Layout:     lrep,
		Warnings:   normalizeWarnings(nrep),
		Regenerate: mindmap.LooksLikeQuiz(record.Content),
	})
}

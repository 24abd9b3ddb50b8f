package server

import (
	"net/http"

	"github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, app *middleware.App) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	if app.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	}

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Study content routes
	apiRoutes.POST("/study-type", routes.GetStudyTypeHandler, middleware.RequirePermission(middleware.PermStudyContentView))
	apiRoutes.POST("/study-type-content", routes.GenerateStudyTypeContentHandler, middleware.RequirePermission(middleware.PermStudyContentCreate))
	apiRoutes.POST("/update-study-type", routes.UpdateStudyTypeHandler, middleware.RequirePermission(middleware.PermStudyContentUpdate))

	// Mind map routes
	mindMap := apiRoutes.Group("/courses/:course_id/mindmap")
	mindMap.GET("", routes.GetMindMapHandler, middleware.RequirePermission(middleware.PermStudyContentView))
	mindMap.POST("/nodes", routes.AddNodeHandler, middleware.RequirePermission(middleware.PermMindMapEdit))
	mindMap.PATCH("/nodes/:node_id", routes.EditNodeHandler, middleware.RequirePermission(middleware.PermMindMapEdit))
	mindMap.DELETE("/nodes/:node_id", routes.DeleteNodeHandler, middleware.RequirePermission(middleware.PermMindMapEdit))
	mindMap.POST("/edges", routes.ConnectNodesHandler, middleware.RequirePermission(middleware.PermMindMapEdit))
	mindMap.POST("/export", routes.ExportMindMapHandler, middleware.RequirePermission(middleware.PermMindMapExport))
}

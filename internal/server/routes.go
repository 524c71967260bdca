package server

import (
	"github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/internal/server/routes"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Session routes
	apiRoutes.GET("/sessions", routes.GetSessionsHandler, middleware.RequirePermission("session.view:all"))
	apiRoutes.POST("/sessions", routes.CreateSessionHandler, middleware.RequirePermission("session.create"))
	apiRoutes.GET("/sessions/:id", routes.GetSessionHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))
	apiRoutes.DELETE("/sessions/:id", routes.DeleteSessionHandler, middleware.RequirePermission("session.delete"))

	// Transcript intake
	apiRoutes.POST("/sessions/:id/fragments", routes.AddFragmentHandler, middleware.RequirePermission("session.ingest"))
	apiRoutes.POST("/sessions/:id/flush", routes.FlushSessionHandler, middleware.RequirePermission("session.ingest"))
	apiRoutes.POST("/sessions/:id/summary", routes.GenerateSummaryHandler, middleware.RequirePermission("session.ingest"))

	// Knowledge graph routes
	apiRoutes.GET("/sessions/:id/graph", routes.GetGraphHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))
	apiRoutes.GET("/sessions/:id/graph/path", routes.GetGraphPathHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))
	apiRoutes.GET("/sessions/:id/graph/cluster", routes.GetGraphClusterHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))

	// Insight and event routes
	apiRoutes.GET("/sessions/:id/insights", routes.GetInsightsHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))
	apiRoutes.GET("/sessions/:id/events", routes.GetEventHistoryHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))
	apiRoutes.GET("/sessions/:id/stream", routes.StreamEventsHandler, middleware.RequireAnyPermission("session.view", "session.view:all"))
}

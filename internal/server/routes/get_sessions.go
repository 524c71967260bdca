package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/internal/session"
	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetSessionsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, c.(*middleware.AppContext).App.Sessions.List())
}

func GetSessionHandler(c echo.Context) error {
	s, ok, err := bindSession(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, s.Stats())
}

func GetGraphHandler(c echo.Context) error {
	s, ok, err := bindSession(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, s.Graph().Export())
}

func GetGraphPathHandler(c echo.Context) error {
	type pathQuery struct {
		From string `query:"from" validate:"required"`
		To   string `query:"to" validate:"required"`
	}
	type pathResponse struct {
		Path  []string `json:"path"`
		Found bool     `json:"found"`
	}

	s, ok, err := bindSession(c)
	if !ok {
		return err
	}
	q := new(pathQuery)
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid query"})
	}
	if err := c.Validate(q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid query"})
	}

	path := s.Graph().ShortestPath(q.From, q.To)
	if path == nil {
		path = []string{}
	}
	return c.JSON(http.StatusOK, pathResponse{Path: path, Found: len(path) > 0})
}

func GetGraphClusterHandler(c echo.Context) error {
	type clusterQuery struct {
		Topic string `query:"topic" validate:"required"`
		Depth int    `query:"depth" validate:"omitempty,min=1,max=5"`
	}

	s, ok, err := bindSession(c)
	if !ok {
		return err
	}
	q := new(clusterQuery)
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid query"})
	}
	if err := c.Validate(q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid query"})
	}
	if q.Depth == 0 {
		q.Depth = 2
	}
	return c.JSON(http.StatusOK, s.Graph().Cluster(q.Topic, q.Depth))
}

// GetInsightsHandler returns the insights of a live session, or those of a
// finished one from the event log.
func GetInsightsHandler(c echo.Context) error {
	params := new(sessionParams)
	if err := (&echo.DefaultBinder{}).BindPathParams(c, params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	s, err := app.Sessions.Get(params.SessionID)
	if err == nil {
		return c.JSON(http.StatusOK, s.RecentInsights())
	}
	if !errors.Is(err, session.ErrNotFound) || app.Events == nil {
		return sessionError(c, err)
	}

	insights, err := app.Events.Insights(c.Request().Context(), params.SessionID)
	if err != nil {
		logger.Error("[Server] Failed to load insights", "session", params.SessionID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if insights == nil {
		insights = []common.Insight{}
	}
	return c.JSON(http.StatusOK, insights)
}

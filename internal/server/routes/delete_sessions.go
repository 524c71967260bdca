package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/internal/session"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteSessionHandler stops a session and archives its graph. With
// ?purge=true the persisted events are removed as well, which also works
// for sessions that already ended.
func DeleteSessionHandler(c echo.Context) error {
	params := new(sessionParams)
	if err := (&echo.DefaultBinder{}).BindPathParams(c, params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	purge := c.QueryParam("purge") == "true"

	app := c.(*middleware.AppContext).App
	err := app.Sessions.Stop(c.Request().Context(), params.SessionID)
	if err != nil && !(purge && errors.Is(err, session.ErrNotFound)) {
		return sessionError(c, err)
	}

	if purge && app.Events != nil {
		if err := app.Events.DeleteSession(c.Request().Context(), params.SessionID); err != nil {
			logger.Error("[Server] Failed to purge events", "session", params.SessionID, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session stopped"})
}

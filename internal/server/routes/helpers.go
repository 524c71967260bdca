package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/internal/session"
	"github.com/OFFIS-RIT/kiwi-live/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi-live/pkg/pipeline"

	"github.com/labstack/echo/v4"
)

type sessionParams struct {
	SessionID string `param:"id" validate:"required,max=128"`
}

// bindSession binds and validates the :id param and looks the session up.
// On failure the error response is already written and ok is false.
func bindSession(c echo.Context) (s *pipeline.Session, ok bool, err error) {
	params := new(sessionParams)
	if err := (&echo.DefaultBinder{}).BindPathParams(c, params); err != nil {
		return nil, false, c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return nil, false, c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	s, err = c.(*middleware.AppContext).App.Sessions.Get(params.SessionID)
	if err != nil {
		return nil, false, sessionError(c, err)
	}
	return s, true, nil
}

func sessionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Session not found"})
	case errors.Is(err, session.ErrExists):
		return c.JSON(http.StatusConflict, map[string]string{"message": "Session already exists"})
	case errors.Is(err, leaselock.ErrHeld):
		return c.JSON(http.StatusConflict, map[string]string{"message": "Session is hosted by another instance"})
	case errors.Is(err, pipeline.ErrSessionStopped):
		return c.JSON(http.StatusGone, map[string]string{"message": "Session stopped"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
}

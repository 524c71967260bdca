package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateSessionHandler starts a new live session
func CreateSessionHandler(c echo.Context) error {
	type createSessionBody struct {
		ID      string `json:"id" validate:"omitempty,max=128"`
		Restore bool   `json:"restore"`
	}

	data := new(createSessionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	s, err := app.Sessions.Create(c.Request().Context(), data.ID, data.Restore)
	if err != nil {
		logger.Warn("[Server] Failed to create session", "id", data.ID, "err", err)
		return sessionError(c, err)
	}

	return c.JSON(http.StatusCreated, s.Stats())
}

// AddFragmentHandler feeds one transcript fragment to a session
func AddFragmentHandler(c echo.Context) error {
	type addFragmentBody struct {
		Text  string `json:"text" validate:"max=20000"`
		Final bool   `json:"final"`
	}

	s, ok, err := bindSession(c)
	if !ok {
		return err
	}

	data := new(addFragmentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	if err := app.Sessions.Ingest(c.Request().Context(), s.ID(), data.Text, data.Final); err != nil {
		return sessionError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message": "Fragment accepted"})
}

// FlushSessionHandler releases buffered text as a chunk right away
func FlushSessionHandler(c echo.Context) error {
	s, ok, err := bindSession(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"flushed": s.Flush()})
}

// GenerateSummaryHandler refreshes the executive summary on demand
func GenerateSummaryHandler(c echo.Context) error {
	s, ok, err := bindSession(c)
	if !ok {
		return err
	}

	summary, generated := s.Analyzer().GenerateExecutiveSummary(c.Request().Context())
	if !generated {
		return c.JSON(http.StatusNoContent, nil)
	}
	return c.JSON(http.StatusOK, summary)
}

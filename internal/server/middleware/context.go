package middleware

import (
	"github.com/OFFIS-RIT/kiwi-live/internal/session"
	"github.com/OFFIS-RIT/kiwi-live/pkg/store"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int32
	Role        string
	Permissions []string
}

type App struct {
	Sessions *session.Manager
	// Events is nil when no database is configured.
	Events         store.EventLog
	Key            keyfunc.Keyfunc
	MasterAPIKey   string
	MasterUserID   int32
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestEcho(app *App, perm string) *echo.Echo {
	e := echo.New()
	e.Use(AppContextMiddleware(app))
	e.GET("/protected", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, AuthMiddleware, RequirePermission(perm))
	return e
}

func TestAuthMiddleware(t *testing.T) {
	app := &App{MasterAPIKey: "master", MasterUserID: 1, MasterUserRole: "admin"}

	tests := []struct {
		name       string
		header     string
		query      string
		upgrade    bool
		wantStatus int
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "wrong token without jwks", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "master key", header: "Bearer master", wantStatus: http.StatusOK},
		{name: "query token on websocket upgrade", query: "?access_token=master", upgrade: true, wantStatus: http.StatusOK},
		{name: "query token ignored on plain request", query: "?access_token=master", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho(app, "session.view")
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	user := &AppUser{Role: "user", Permissions: []string{"session.view"}}
	admin := &AppUser{Role: "admin"}

	tests := []struct {
		name string
		user *AppUser
		perm string
		want bool
	}{
		{name: "granted", user: user, perm: "session.view", want: true},
		{name: "missing", user: user, perm: "session.delete", want: false},
		{name: "admin", user: admin, perm: "session.delete", want: true},
		{name: "nil user", user: nil, perm: "session.view", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.user, tt.perm); got != tt.want {
				t.Fatalf("HasPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

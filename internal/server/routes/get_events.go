package routes

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/pkg/events"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/store"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamBuffer = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Authentication already ran, the browser origin is not checked again.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func parseKinds(raw string) ([]events.Kind, bool) {
	if raw == "" {
		return nil, true
	}
	var kinds []events.Kind
	for part := range strings.SplitSeq(raw, ",") {
		k := events.Kind(strings.TrimSpace(part))
		if !k.Valid() {
			return nil, false
		}
		kinds = append(kinds, k)
	}
	return kinds, true
}

// StreamEventsHandler upgrades to a websocket and forwards every event of
// the session until the client leaves or the session stops. Clients that
// fall behind lose events rather than stall the pipeline.
func StreamEventsHandler(c echo.Context) error {
	s, ok, err := bindSession(c)
	if !ok {
		return err
	}
	kinds, ok := parseKinds(c.QueryParam("kinds"))
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Unknown event kind"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("[Server] Websocket upgrade failed", "session", s.ID(), "err", err)
		return nil
	}
	defer ws.Close()

	log := logger.Component("Stream").With("session", s.ID())
	feed := make(chan events.Event, streamBuffer)
	unsubscribe := s.Events().SubscribeAll(func(ev events.Event) {
		if len(kinds) > 0 && !slices.Contains(kinds, ev.Kind) {
			return
		}
		select {
		case feed <- ev:
		default:
			log.Debug("slow client, event dropped", "kind", ev.Kind)
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	log.Debug("client connected")
	for {
		select {
		case <-closed:
			log.Debug("client disconnected")
			return nil
		case <-c.Request().Context().Done():
			return nil
		case ev := <-feed:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				log.Debug("write failed", "err", err)
				return nil
			}
		case <-ticker.C:
			if s.Stopped() {
				_ = ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session stopped"),
					time.Now().Add(writeWait),
				)
				return nil
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

// GetEventHistoryHandler reads persisted events of a session from the event
// log, live or finished.
func GetEventHistoryHandler(c echo.Context) error {
	params := new(sessionParams)
	if err := (&echo.DefaultBinder{}).BindPathParams(c, params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.Events == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"message": "Event log not configured"})
	}

	kinds, ok := parseKinds(c.QueryParam("kinds"))
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Unknown event kind"})
	}
	limit := 500
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 5000 {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid limit"})
		}
		limit = n
	}

	evs, err := app.Events.Events(c.Request().Context(), params.SessionID, kinds, limit)
	if err != nil {
		logger.Error("[Server] Failed to load events", "session", params.SessionID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if evs == nil {
		evs = []store.StoredEvent{}
	}
	return c.JSON(http.StatusOK, evs)
}

package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-reassignment/internal/events"
)

// eventBuffer is how many notifications may queue for a slow client before
// further ones are dropped for that client.
const eventBuffer = 64

// Events handles GET /v1/move-mode/events.  It streams every move-mode
// notification as server-sent events until the client disconnects.
func (h *MoveModeHandler) Events(c echo.Context) error {
	ch := make(chan events.Event, eventBuffer)
	unsubscribe := h.Coordinator.Events().SubscribeAll(events.ListenerFunc(func(e events.Event) {
		select {
		case ch <- e:
		default:
			c.Logger().Warnf("move-mode: event stream full, dropped %s", e.Type)
		}
	}))
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/loanops/dealbridge/internal/events"
)

// EventsWSHandler broadcasts relay events to widget clients over a
// websocket. A client that cannot keep up has its event channel drop
// messages; a failed write closes the connection.
type EventsWSHandler struct {
	manager *events.Manager
	log     zerolog.Logger
}

// NewEventsWSHandler creates the websocket handler.
func NewEventsWSHandler(manager *events.Manager, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		manager: manager,
		log:     log.With().Str("handler", "events_ws").Logger(),
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The widget is embedded in the CRM UI, served from another origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	subscriberID, ch := h.manager.Subscribe(32)
	defer h.manager.Unsubscribe(subscriberID)

	h.log.Info().Str("subscriber_id", subscriberID).Msg("Widget client connected")

	// The widget never sends messages; CloseRead discards inbound frames
	// and cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "subscription closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("subscriber_id", subscriberID).Msg("Widget client write failed")
				return
			}
		}
	}
}

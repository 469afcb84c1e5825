package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WSHandler upgrades HTTP requests to websockets and feeds inbound messages
// into the router, one at a time per connection.
type WSHandler struct {
	router       *Router
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

func NewWSHandler(router *Router, pingInterval time.Duration) *WSHandler {
	if pingInterval <= 0 {
		pingInterval = defaultPingRate
	}
	return &WSHandler{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
	}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	client := newClient(conn)
	go client.writePump(h.pingInterval)

	// A missed pong lets the read deadline expire, which breaks the loop and
	// triggers cleanup below.
	pongWait := h.pingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.router.Dispatch(r.Context(), client, env)
	}

	h.router.Disconnect(r.Context(), client)
}

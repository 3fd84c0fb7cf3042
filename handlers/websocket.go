package handlers

import (
	"net/http"

	ws "alert-backend/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin allow-listing happens at the CORS layer; the dashboard
		// connects from the same allowed origins.
		return true
	},
}

// Listen handles WebSocket connections for alert lifecycle events
func (h *Handlers) Listen(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)

	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	log.Infof("WebSocket connection established")
}

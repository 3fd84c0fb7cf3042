package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"alert-backend/models"

	"github.com/apex/log"
)

// Hub manages WebSocket connections and broadcasting. Delivery is best
// effort: late subscribers miss prior events and slow subscribers are
// dropped rather than queued.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for all clients
	broadcast chan []byte

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Mutex for thread-safe operations
	mutex sync.RWMutex

	// Statistics
	lastAlertID      int64
	connectedClients int
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			h.connectedClients = len(h.clients)
			connected := h.connectedClients
			h.mutex.Unlock()
			log.Infof("Client connected. Total clients: %d", connected)

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.connectedClients = len(h.clients)
			}
			connected := h.connectedClients
			h.mutex.Unlock()
			log.Infof("Client disconnected. Total clients: %d", connected)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.connectedClients = len(h.clients)
			h.mutex.Unlock()
		}
	}
}

// BroadcastAlertCreated broadcasts a new alert to all connected clients.
func (h *Hub) BroadcastAlertCreated(alert *models.Alert) {
	h.mutex.Lock()
	h.lastAlertID = alert.ID
	connected := h.connectedClients
	h.mutex.Unlock()

	h.emit("alert-created", alert)
	log.Infof("Broadcasted alert-created for alert %d to %d clients", alert.ID, connected)
}

// BroadcastAlertResolved broadcasts an alert resolution to all connected clients.
func (h *Hub) BroadcastAlertResolved(id int64, estado int, feedback string) {
	h.mutex.Lock()
	h.lastAlertID = id
	connected := h.connectedClients
	h.mutex.Unlock()

	h.emit("alert-resolved", &models.AlertResolvedEvent{
		ID:       id,
		State:    estado,
		Feedback: feedback,
	})
	log.Infof("Broadcasted alert-resolved for alert %d to %d clients", id, connected)
}

func (h *Hub) emit(kind string, payload interface{}) {
	message := models.BroadcastMessage{
		Type:      kind,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Errorf("Failed to marshal broadcast message: %v", err)
		return
	}

	h.broadcast <- data
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() (int, int64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connectedClients, h.lastAlertID
}

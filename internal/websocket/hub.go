package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/layertune/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ProjectID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by project ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to project subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	ProjectID string
	Message   []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ProjectID] == nil {
				h.clients[client.ProjectID] = make(map[*Client]bool)
			}
			h.clients[client.ProjectID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for project %s", client.ProjectID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.ProjectID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.ProjectID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from project %s", client.ProjectID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.ProjectID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) send(projectID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal %T message: %v", msg, err)
		return
	}
	h.broadcast <- &BroadcastMessage{ProjectID: projectID, Message: data}
}

// BroadcastPhase announces a project-wide generation phase change.
func (h *Hub) BroadcastPhase(projectID string, phase model.Phase, detail string) {
	h.send(projectID, model.WSPhaseMessage{
		Type:      model.WSMessageTypePhase,
		ProjectID: projectID,
		Phase:     phase,
		Detail:    detail,
	})
}

// BroadcastStem announces one delivered stem to all project subscribers.
func (h *Hub) BroadcastStem(projectID string, stemType model.StemType, cached bool) {
	h.send(projectID, model.WSStemMessage{
		Type:      model.WSMessageTypeStem,
		ProjectID: projectID,
		StemType:  stemType,
		Cached:    cached,
	})
}

// BroadcastLayers pushes the replacement layer list after a mutation.
func (h *Hub) BroadcastLayers(projectID string, layers []model.Layer) {
	h.send(projectID, model.WSLayersMessage{
		Type:      model.WSMessageTypeLayers,
		ProjectID: projectID,
		Layers:    layers,
	})
}

// BroadcastNotice sends a non-fatal user-facing notice.
func (h *Hub) BroadcastNotice(projectID string, message string) {
	h.send(projectID, model.WSNoticeMessage{
		Type:      model.WSMessageTypeNotice,
		ProjectID: projectID,
		Message:   message,
	})
}

// BroadcastError sends an error message to all project subscribers
func (h *Hub) BroadcastError(projectID string, code, message string) {
	h.send(projectID, model.WSErrorMessage{
		Type:      model.WSMessageTypeError,
		ProjectID: projectID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, projectID string) {
	client := &Client{
		ProjectID: projectID,
		Conn:      c,
		Send:      make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}

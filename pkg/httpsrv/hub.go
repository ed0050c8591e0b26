package httpsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"assist-server/pkg/session"
)

// Client represents a connected WebSocket client
type Client struct {
	hub       *EventHub
	conn      *websocket.Conn
	send      chan []byte
	logger    *logrus.Logger
	sessionID string // If client subscribes to a specific session
}

// EventHub manages WebSocket clients and broadcasts session events. It
// implements session.EventSink so a controller can stream its derived
// events straight to connected dashboards.
type EventHub struct {
	logger             *logrus.Logger
	clients            map[*Client]bool
	sessionSubscribers map[string]map[*Client]bool
	broadcast          chan session.Event
	register           chan *Client
	unregister         chan *Client
	mutex              sync.RWMutex
	running            bool
}

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections
		return true
	},
}

// NewEventHub creates a new session event hub
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		logger:             logger,
		clients:            make(map[*Client]bool),
		sessionSubscribers: make(map[string]map[*Client]bool),
		broadcast:          make(chan session.Event, 256),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
	}
}

// Run starts the event hub
func (h *EventHub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket event hub")
	h.mutex.Lock()
	h.running = true
	h.mutex.Unlock()

	defer func() {
		h.mutex.Lock()
		h.running = false
		h.mutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down WebSocket event hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true

			if client.sessionID != "" {
				if _, exists := h.sessionSubscribers[client.sessionID]; !exists {
					h.sessionSubscribers[client.sessionID] = make(map[*Client]bool)
				}
				h.sessionSubscribers[client.sessionID][client] = true
				h.logger.WithField("session_id", client.sessionID).Info("Client subscribed to specific session")
			}

			h.mutex.Unlock()
			h.logger.Info("Client connected to WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				if client.sessionID != "" {
					if subscribers, exists := h.sessionSubscribers[client.sessionID]; exists {
						delete(subscribers, client)
						if len(subscribers) == 0 {
							delete(h.sessionSubscribers, client.sessionID)
						}
					}
				}

				h.logger.Info("Client disconnected from WebSocket")
			}
			h.mutex.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal session event")
				continue
			}

			h.mutex.RLock()

			if subscribers, exists := h.sessionSubscribers[event.SessionID]; exists && len(subscribers) > 0 {
				for client := range subscribers {
					select {
					case client.send <- data:
					default:
						close(client.send)
						delete(h.clients, client)
						delete(subscribers, client)
					}
				}
			}

			for client := range h.clients {
				// Skip clients that are subscribed to specific sessions
				if client.sessionID != "" {
					continue
				}

				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}

			h.mutex.RUnlock()
		}
	}
}

// Publish implements session.EventSink. The send never blocks the
// session pipeline: when the broadcast buffer is full the event is
// dropped.
func (h *EventHub) Publish(event session.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.WithField("event_type", event.Type).Debug("Event hub buffer full, dropping event")
	}
}

// ServeWs handles WebSocket requests from clients
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	// Optional per-session subscription
	sessionID := r.URL.Query().Get("session_id")

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		logger:    h.logger,
		sessionID: sessionID,
	}

	client.hub.register <- client

	go client.writePump()
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// IsRunning returns true if the hub's broadcast loop is running
func (h *EventHub) IsRunning() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.running
}

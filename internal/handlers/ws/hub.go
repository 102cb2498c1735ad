package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// ClientConnection wraps a WebSocket connection with health metadata.
type ClientConnection struct {
	Conn       *websocket.Conn
	UserID     string
	LastPong   time.Time
	PingTicker *time.Ticker
	CloseChan  chan struct{}

	// writeMu serializes frame writes; the session's projector
	// goroutines and the ping routine share the connection.
	writeMu sync.Mutex
}

// Hub manages active WebSocket connections. It only moves frames; view
// state lives in the per-user Session. A user who is offline simply
// misses pushes — the live queries replay current state on reconnect, so
// nothing is queued.
type Hub struct {
	clients      map[string]*ClientConnection
	clientsMux   sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration

	// OnDisconnect runs after a connection is unregistered, for presence
	// bookkeeping. Best effort.
	OnDisconnect func(userID string)
}

func NewHub() *Hub {
	hub := &Hub{
		clients:      make(map[string]*ClientConnection),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
	}
	go hub.connectionHealthChecker()
	return hub
}

// Register adds a client connection with health monitoring. A second
// connection for the same user replaces the first.
func (h *Hub) Register(userID string, conn *websocket.Conn) *ClientConnection {
	client := &ClientConnection{
		Conn:       conn,
		UserID:     userID,
		LastPong:   time.Now(),
		PingTicker: time.NewTicker(h.pingInterval),
		CloseChan:  make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		h.clientsMux.Lock()
		if c, exists := h.clients[userID]; exists {
			c.LastPong = time.Now()
		}
		h.clientsMux.Unlock()
		conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

	h.clientsMux.Lock()
	if prev, exists := h.clients[userID]; exists {
		prev.PingTicker.Stop()
		close(prev.CloseChan)
	}
	h.clients[userID] = client
	total := len(h.clients)
	h.clientsMux.Unlock()

	go h.pingRoutine(client)

	log.Printf("user %s connected (total: %d)", userID, total)
	return client
}

// Unregister removes a client connection and fires the disconnect hook.
func (h *Hub) Unregister(userID string) {
	h.clientsMux.Lock()
	client, exists := h.clients[userID]
	if exists {
		client.PingTicker.Stop()
		close(client.CloseChan)
		delete(h.clients, userID)
	}
	total := len(h.clients)
	h.clientsMux.Unlock()
	if !exists {
		return
	}

	log.Printf("user %s disconnected (total: %d)", userID, total)
	if h.OnDisconnect != nil {
		h.OnDisconnect(userID)
	}
}

// IsConnected reports whether the user has an open connection.
func (h *Hub) IsConnected(userID string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// SendToUser pushes one envelope to a user. Offline users are skipped.
func (h *Hub) SendToUser(userID string, env Envelope) {
	h.clientsMux.RLock()
	client, exists := h.clients[userID]
	h.clientsMux.RUnlock()
	if !exists {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("marshal push for user %s: %v", userID, err)
		return
	}
	client.writeMu.Lock()
	err = client.Conn.WriteMessage(websocket.TextMessage, data)
	client.writeMu.Unlock()
	if err != nil {
		log.Printf("push to user %s failed: %v", userID, err)
		h.Unregister(userID)
	}
}

// ConnectedUsers returns currently connected user IDs.
func (h *Hub) ConnectedUsers() []string {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	users := make([]string, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	return users
}

func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// Shutdown closes every open connection and fires the disconnect hooks.
// Called on server exit.
func (h *Hub) Shutdown() {
	for _, userID := range h.ConnectedUsers() {
		h.clientsMux.RLock()
		client, exists := h.clients[userID]
		h.clientsMux.RUnlock()
		if exists {
			client.writeMu.Lock()
			client.Conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			client.writeMu.Unlock()
			client.Conn.Close()
		}
		h.Unregister(userID)
	}
}

// pingRoutine keeps the connection alive until close or failure.
func (h *Hub) pingRoutine(client *ClientConnection) {
	for {
		select {
		case <-client.CloseChan:
			return
		case <-client.PingTicker.C:
			client.writeMu.Lock()
			err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			client.writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed for user %s: %v", client.UserID, err)
				h.Unregister(client.UserID)
				return
			}
		}
	}
}

// connectionHealthChecker drops connections that stopped answering pings.
func (h *Hub) connectionHealthChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		h.clientsMux.RLock()
		var dead []string
		for userID, client := range h.clients {
			if now.Sub(client.LastPong) > h.pongTimeout {
				dead = append(dead, userID)
			}
		}
		h.clientsMux.RUnlock()

		for _, userID := range dead {
			log.Printf("removing dead connection for user %s (no pong)", userID)
			h.Unregister(userID)
		}
	}
}

package handlers

import (
	"encoding/json"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/unichat/unichat-backend/internal/handlers/ws"
	"github.com/unichat/unichat-backend/internal/live"
)

type WebSocketHandler struct {
	hub     *ws.Hub
	deps    ws.SessionDeps
	tracker *live.Tracker
}

func NewWebSocketHandler(deps ws.SessionDeps) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     ws.NewHub(),
		deps:    deps,
		tracker: deps.Tracker,
	}
	h.hub.OnDisconnect = func(userID string) {
		h.tracker.DisconnectHook(userID)()
	}
	return h
}

// GetHub returns the hub instance (useful for sending messages from other handlers)
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

// Upgrade gates the websocket route: only upgrade requests pass through.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		c.Close()
		return
	}
	wsDebug := os.Getenv("WS_DEBUG") == "true"

	h.hub.Register(userID, c)

	go func() {
		if err := h.tracker.SignIn(userID); err != nil {
			log.Printf("set user %s online: %v", userID, err)
		}
	}()

	session := ws.NewSession(userID, h.hub, h.deps)
	defer func() {
		session.Close()
		h.hub.Unregister(userID)
	}()

	if err := session.Start(); err != nil {
		log.Printf("start session for user %s: %v", userID, err)
		return
	}

	log.Printf("user %s connected via WebSocket", userID)

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Printf("read from user %s: %v", userID, err)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if wsDebug {
			log.Printf("ws_recv user_id=%s size=%d", userID, len(messageBytes))
		}

		var cmd ws.Command
		if err := json.Unmarshal(messageBytes, &cmd); err != nil {
			log.Printf("decode command from user %s: %v", userID, err)
			h.hub.SendToUser(userID, ws.Envelope{
				Type:    ws.PushError,
				Payload: ws.ErrorPayload{Code: "invalid_command", Message: "Invalid command format"},
			})
			continue
		}

		session.HandleCommand(cmd)
	}

	log.Printf("user %s disconnected from WebSocket", userID)
}

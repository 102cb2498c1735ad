package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/unichat/unichat-backend/internal/cache"
	"github.com/unichat/unichat-backend/internal/httpx"
	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/service"
	"github.com/unichat/unichat-backend/internal/store"
)

type ConversationHandler struct {
	conversations *service.ConversationService
	users         live.UserResolver
	tracker       *live.Tracker
	chatCache     *cache.ChatListCache
}

func NewConversationHandler(conversations *service.ConversationService, users live.UserResolver, tracker *live.Tracker, chatCache *cache.ChatListCache) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		users:         users,
		tracker:       tracker,
		chatCache:     chatCache,
	}
}

type startPrivateInput struct {
	PeerID string `json:"peer_id"`
}

func (h *ConversationHandler) StartPrivate(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var input startPrivateInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if input.PeerID == "" {
		return httpx.BadRequest(c, "missing_peer", "peer_id is required")
	}

	conv, err := h.conversations.StartPrivateChat(userID, input.PeerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.NotFound(c, "peer_not_found", "No such user")
		}
		if errors.Is(err, service.ErrSelfChat) {
			return httpx.BadRequest(c, "self_chat", "Cannot start a chat with yourself")
		}
		log.Printf("start private chat %s -> %s: %v", userID, input.PeerID, err)
		return httpx.Internal(c, "start_chat_failed")
	}
	_ = h.chatCache.Invalidate(userID)
	return c.Status(fiber.StatusCreated).JSON(conv)
}

type createGroupInput struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (h *ConversationHandler) CreateGroup(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var input createGroupInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	conv, err := h.conversations.CreateGroup(input.Name, userID, input.Members)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGroupName) || errors.Is(err, service.ErrNoParticipants) {
			return httpx.BadRequest(c, "invalid_group", err.Error())
		}
		log.Printf("create group by %s: %v", userID, err)
		return httpx.Internal(c, "create_group_failed")
	}
	_ = h.chatCache.Invalidate(userID)
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// List renders the chat list for first paint. The cached copy written by
// the live projector is preferred; a miss falls back to a one-shot query
// through the same pure projection the projector uses.
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	if entries, ok := h.chatCache.Get(userID); ok {
		return c.JSON(fiber.Map{"entries": entries, "cached": true})
	}

	convs, err := h.conversations.ListForUser(userID)
	if err != nil {
		log.Printf("list conversations for %s: %v", userID, err)
		// Fail-soft for the read path: the client renders a placeholder.
		return c.JSON(fiber.Map{"entries": []live.ChatEntry{}, "error": "unavailable"})
	}
	entries := live.BuildEntries(convs, userID, h.users, time.Now())
	_ = h.chatCache.Set(userID, entries)
	return c.JSON(fiber.Map{"entries": entries})
}

// MarkRead resets the caller's unread counter and back-fills read_by.
func (h *ConversationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	convID := c.Params("id")
	if convID == "" {
		return httpx.BadRequest(c, "missing_conversation", "conversation id is required")
	}

	if err := h.tracker.MarkConversationRead(convID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.NotFound(c, "conversation_not_found", "No such conversation")
		}
		if errors.Is(err, live.ErrNotParticipant) {
			return httpx.Forbidden(c, "not_participant", "Not a participant")
		}
		log.Printf("mark read %s by %s: %v", convID, userID, err)
		return httpx.Internal(c, "mark_read_failed")
	}
	_ = h.chatCache.Invalidate(userID)
	return c.SendStatus(fiber.StatusNoContent)
}

type addAdminInput struct {
	MemberID string `json:"member_id"`
}

func (h *ConversationHandler) AddAdmin(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	convID := c.Params("id")
	var input addAdminInput
	if err := c.BodyParser(&input); err != nil || input.MemberID == "" {
		return httpx.BadRequest(c, "invalid_request_body", "member_id is required")
	}

	if err := h.conversations.AddAdmin(convID, userID, input.MemberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.NotFound(c, "conversation_not_found", "No such conversation")
		}
		return httpx.Forbidden(c, "add_admin_failed", err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

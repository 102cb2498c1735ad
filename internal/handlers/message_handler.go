package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/unichat/unichat-backend/internal/httpx"
	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/service"
	"github.com/unichat/unichat-backend/internal/store"
)

type MessageHandler struct {
	messages      *service.MessageService
	conversations *service.ConversationService
}

func NewMessageHandler(messages *service.MessageService, conversations *service.ConversationService) *MessageHandler {
	return &MessageHandler{messages: messages, conversations: conversations}
}

func (h *MessageHandler) Send(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var input service.SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if input.ConversationID == "" {
		return httpx.BadRequest(c, "missing_conversation", "conversation_id is required")
	}

	msg, err := h.messages.Send(userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			return httpx.BadRequest(c, "empty_message", "Message has no content")
		case errors.Is(err, store.ErrNotFound):
			return httpx.NotFound(c, "conversation_not_found", "No such conversation")
		case errors.Is(err, live.ErrNotParticipant):
			return httpx.Forbidden(c, "not_participant", "Not a participant")
		}
		log.Printf("send message by %s to %s: %v", userID, input.ConversationID, err)
		return httpx.Internal(c, "send_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

type editMessageInput struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	messageID := c.Params("id")
	var input editMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	msg, err := h.messages.Edit(messageID, userID, input.Content)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return httpx.NotFound(c, "message_not_found", "No such message")
		case errors.Is(err, service.ErrNotSender):
			return httpx.Forbidden(c, "not_sender", "Only the sender can edit a message")
		case errors.Is(err, service.ErrEmptyMessage):
			return httpx.BadRequest(c, "empty_message", "Message has no content")
		}
		log.Printf("edit message %s by %s: %v", messageID, userID, err)
		return httpx.Internal(c, "edit_failed")
	}
	return c.JSON(msg)
}

func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	messageID := c.Params("id")

	if err := h.messages.Delete(messageID, userID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return httpx.NotFound(c, "message_not_found", "No such message")
		case errors.Is(err, service.ErrNotAllowed):
			return httpx.Forbidden(c, "not_allowed", "Not allowed to delete this message")
		}
		log.Printf("delete message %s by %s: %v", messageID, userID, err)
		return httpx.Internal(c, "delete_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// History serves the REST backfill used before the live stream attaches.
func (h *MessageHandler) History(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	convID := c.Params("id")

	conv, err := h.conversations.Get(convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.NotFound(c, "conversation_not_found", "No such conversation")
		}
		log.Printf("load conversation %s: %v", convID, err)
		return httpx.Internal(c, "history_failed")
	}
	if !conv.HasParticipant(userID) {
		return httpx.Forbidden(c, "not_participant", "Not a participant")
	}

	limit := live.DefaultInitialPage
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return httpx.BadRequest(c, "invalid_limit", "limit must be between 1 and 200")
		}
		limit = n
	}

	msgs, err := h.messages.History(convID, limit)
	if err != nil {
		log.Printf("history for %s: %v", convID, err)
		return httpx.Internal(c, "history_failed")
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

package handlers

import (
	"bytes"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/unichat/unichat-backend/internal/httpx"
	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/service"
	"github.com/unichat/unichat-backend/internal/storage"
	"github.com/unichat/unichat-backend/internal/store"
	"github.com/unichat/unichat-backend/internal/validation"
)

type AttachmentHandler struct {
	storage       *storage.AttachmentStorage
	conversations *service.ConversationService
}

func NewAttachmentHandler(st *storage.AttachmentStorage, conversations *service.ConversationService) *AttachmentHandler {
	return &AttachmentHandler{storage: st, conversations: conversations}
}

// Upload accepts a multipart file, stores it and returns the attachment
// descriptor the client then embeds in a send-message call. Images go
// through the resize pipeline; other kinds are stored as-is up to the
// configured size cap.
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
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
		return httpx.Internal(c, "upload_failed")
	}
	if !conv.HasParticipant(userID) {
		return httpx.Forbidden(c, "not_participant", "Not a participant")
	}

	kind := models.AttachmentKind(c.FormValue("kind", "document"))
	if !validation.ValidateAttachmentKind(kind) {
		return httpx.BadRequest(c, "invalid_kind", "Unknown attachment kind")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return httpx.BadRequest(c, "missing_file", "No file provided")
	}
	if fileHeader.Size > validation.MaxAttachmentBytes() {
		return httpx.BadRequest(c, "file_too_large", "Attachment exceeds the size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("open upload from %s: %v", userID, err)
		return httpx.Internal(c, "upload_failed")
	}
	defer file.Close()

	att := models.Attachment{
		Kind: kind,
		Name: fileHeader.Filename,
	}
	attID := uuid.NewString()
	key := storage.AttachmentKey(convID, attID, fileHeader.Filename)

	if kind == models.ImageAttachment {
		processed, err := storage.ProcessImageAttachment(file, storage.DefaultImageOptions())
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				return httpx.BadRequest(c, "file_too_large", "Image exceeds the size limit")
			}
			if errors.Is(err, storage.ErrInvalidImage) || errors.Is(err, storage.ErrUnsupported) {
				return httpx.BadRequest(c, "invalid_image", "Unsupported or corrupt image")
			}
			log.Printf("process image from %s: %v", userID, err)
			return httpx.Internal(c, "upload_failed")
		}
		size, err := h.storage.Upload(c.Context(), key, bytes.NewReader(processed.Data), int64(len(processed.Data)), processed.ContentType)
		if err != nil {
			log.Printf("store image %s: %v", key, err)
			return httpx.Internal(c, "upload_failed")
		}
		att.Size = size
		att.ContentType = processed.ContentType
		att.Width = processed.Width
		att.Height = processed.Height
	} else {
		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		size, err := h.storage.Upload(c.Context(), key, file, fileHeader.Size, contentType)
		if err != nil {
			log.Printf("store attachment %s: %v", key, err)
			return httpx.Internal(c, "upload_failed")
		}
		att.Size = size
		att.ContentType = contentType
	}

	url, err := h.storage.PublicURL(c.Context(), key)
	if err != nil {
		log.Printf("presign %s: %v", key, err)
		return httpx.Internal(c, "upload_failed")
	}
	att.URL = url

	return c.Status(fiber.StatusCreated).JSON(att)
}

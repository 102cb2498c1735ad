package service

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
	"github.com/unichat/unichat-backend/internal/validation"
)

var (
	// ErrEmptyMessage means the send is a no-op: nothing is written.
	ErrEmptyMessage = errors.New("message has neither content nor attachment")
	ErrNotSender    = errors.New("only the sender can modify this message")
	ErrNotAllowed   = errors.New("not allowed")
)

// MessageService writes messages and maintains the conversation's
// denormalized preview, activity timestamp and unread counters.
type MessageService struct {
	st *store.DB
}

func NewMessageService(st *store.DB) *MessageService {
	return &MessageService{st: st}
}

type SendMessageInput struct {
	ConversationID string             `json:"conversation_id"`
	ClientID       string             `json:"client_id"`
	Content        string             `json:"content"`
	Attachment     *models.Attachment `json:"attachment"`
}

// Send validates, writes the message with the sender already in read_by,
// then updates the conversation: preview and activity timestamp, the
// sender's own unread key reset to zero, and one atomic increment per
// other participant. The increments are separate writes: concurrent sends
// from different senders race on the counter map, which the store's
// Increment keeps free of lost updates, but the whole fan-out is not a
// transaction.
func (s *MessageService) Send(senderID string, input SendMessageInput) (*models.Message, error) {
	content := validation.TrimAndLimit(input.Content, validation.MaxMessageLength())
	if content == "" && input.Attachment == nil {
		return nil, ErrEmptyMessage
	}

	doc, err := s.st.Get("conversations", input.ConversationID)
	if err != nil {
		return nil, err
	}
	var conv models.Conversation
	if err := doc.Decode(&conv); err != nil {
		return nil, err
	}
	conv.ID = input.ConversationID
	if !conv.HasParticipant(senderID) {
		return nil, live.ErrNotParticipant
	}

	// Client-supplied ID makes retried sends idempotent.
	if input.ClientID != "" {
		if existing, err := s.findByClientID(input.ConversationID, input.ClientID, senderID); err == nil {
			return existing, nil
		}
	}

	msg := models.Message{
		ID:             ulid.Make().String(),
		ClientID:       input.ClientID,
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		Content:        content,
		Attachment:     input.Attachment,
		CreatedAt:      store.Now(),
		ReadBy:         []string{senderID},
	}
	data, err := store.Encode(msg)
	if err != nil {
		return nil, err
	}
	if err := s.st.Set("messages", msg.ID, data); err != nil {
		return nil, err
	}

	preview := live.TruncatePreview(content)
	if preview == "" && msg.Attachment != nil {
		preview = attachmentPreview(msg.Attachment.Kind)
	}
	if err := s.st.Update("conversations", conv.ID,
		store.Set("last_message", preview),
		store.Set("last_activity", msg.CreatedAt),
		store.Set(fmt.Sprintf("unread_counts.%s", senderID), 0)); err != nil {
		return nil, err
	}
	for _, p := range conv.Participants {
		if p == senderID {
			continue
		}
		if err := s.st.Update("conversations", conv.ID,
			store.Increment(fmt.Sprintf("unread_counts.%s", p), 1)); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

// Edit replaces the content of the sender's own message.
func (s *MessageService) Edit(messageID, userID, content string) (*models.Message, error) {
	content = validation.TrimAndLimit(content, validation.MaxMessageLength())
	if content == "" {
		return nil, ErrEmptyMessage
	}
	msg, err := s.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotSender
	}
	if err := s.st.Update("messages", messageID,
		store.Set("content", content),
		store.Set("edited", true)); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.Edited = true
	return msg, nil
}

// Delete soft-deletes a message. The sender may always delete their own;
// in a group, an admin may delete anyone's.
func (s *MessageService) Delete(messageID, userID string) error {
	msg, err := s.GetMessage(messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		doc, err := s.st.Get("conversations", msg.ConversationID)
		if err != nil {
			return err
		}
		var conv models.Conversation
		if err := doc.Decode(&conv); err != nil {
			return err
		}
		if !conv.IsAdmin(userID) {
			return ErrNotAllowed
		}
	}
	return s.st.Update("messages", messageID,
		store.Set("deleted", true))
}

func (s *MessageService) GetMessage(id string) (*models.Message, error) {
	doc, err := s.st.Get("messages", id)
	if err != nil {
		return nil, err
	}
	var m models.Message
	if err := doc.Decode(&m); err != nil {
		return nil, err
	}
	m.ID = id
	return &m, nil
}

// History returns the most recent limit messages ascending.
func (s *MessageService) History(conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = live.DefaultInitialPage
	}
	docs, err := s.st.RunQuery(store.In("messages").
		Where("conversation_id", store.OpEqual, conversationID).
		OrderedBy("created_at").
		Descending().
		WithLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, len(docs))
	for i, d := range docs {
		var m models.Message
		if err := d.Decode(&m); err != nil {
			return nil, err
		}
		m.ID = d.ID
		out[len(docs)-1-i] = m
	}
	return out, nil
}

func (s *MessageService) findByClientID(conversationID, clientID, senderID string) (*models.Message, error) {
	docs, err := s.st.RunQuery(store.In("messages").
		Where("conversation_id", store.OpEqual, conversationID).
		Where("client_id", store.OpEqual, clientID).
		Where("sender_id", store.OpEqual, senderID).
		WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	var m models.Message
	if err := docs[0].Decode(&m); err != nil {
		return nil, err
	}
	m.ID = docs[0].ID
	return &m, nil
}

func attachmentPreview(kind models.AttachmentKind) string {
	switch kind {
	case models.ImageAttachment:
		return "[image]"
	case models.AudioAttachment:
		return "[audio]"
	default:
		return "[file]"
	}
}

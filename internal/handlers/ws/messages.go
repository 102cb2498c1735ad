package ws

import (
	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/models"
)

// Push message types, server to client.
const (
	PushChatList     = "chat_list"
	PushMessageDiff  = "message_diff"
	PushNotification = "notification"
	PushConversation = "conversation"
	PushError        = "error"
	PushPong         = "pong"
)

// Command types, client to server.
const (
	CmdOpenConversation  = "open_conversation"
	CmdCloseConversation = "close_conversation"
	CmdMarkRead          = "mark_read"
	CmdSetVisibility     = "set_visibility"
	CmdPing              = "ping"
)

// Envelope is the wire format in both directions.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Command is the decoded client request. All commands share one shape;
// unused fields stay zero.
type Command struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Visible        *bool  `json:"visible,omitempty"`
}

type ChatListPayload struct {
	Entries []live.ChatEntry `json:"entries"`
}

type MutationPayload struct {
	Kind    string         `json:"kind"`
	Index   int            `json:"index"`
	Message models.Message `json:"message"`
}

type MessageDiffPayload struct {
	ConversationID string            `json:"conversation_id"`
	Mutations      []MutationPayload `json:"mutations"`
}

type NotificationPayload struct {
	ConversationID string         `json:"conversation_id"`
	Message        models.Message `json:"message"`
}

type ConversationPayload struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

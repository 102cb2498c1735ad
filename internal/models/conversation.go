package models

type ConversationType string

const (
	PrivateConversation ConversationType = "private"
	GroupConversation   ConversationType = "group"
)

// Conversation is the chat-list unit: a private pair or a named group.
// UnreadCounts maps participant ID to the number of messages that
// participant has not seen. The counters are maintained by separate,
// non-transactional writer paths (sender increments, reader resets), so
// they can drift under concurrent sends; that is accepted behavior.
type Conversation struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Participants []string         `json:"participants"`
	LastMessage  string           `json:"last_message"`
	LastActivity string           `json:"last_activity"`
	UnreadCounts map[string]int   `json:"unread_counts"`
	CreatedAt    string           `json:"created_at"`

	// Group-only fields.
	Name      string   `json:"name,omitempty"`
	OwnerID   string   `json:"owner_id,omitempty"`
	Admins    []string `json:"admins,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

// HasParticipant reports whether id is part of the conversation.
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// IsAdmin reports whether id is in the group's admin set. Always false
// for private conversations.
func (c *Conversation) IsAdmin(id string) bool {
	if c.Type != GroupConversation {
		return false
	}
	for _, a := range c.Admins {
		if a == id {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter for a participant, zero when the
// participant has no entry yet.
func (c *Conversation) UnreadFor(id string) int {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[id]
}

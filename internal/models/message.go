package models

type AttachmentKind string

const (
	ImageAttachment    AttachmentKind = "image"
	DocumentAttachment AttachmentKind = "document"
	AudioAttachment    AttachmentKind = "audio"
)

// Attachment is the single optional blob attached to a message. URL points
// at object storage; Width/Height are only set for images.
type Attachment struct {
	Kind        AttachmentKind `json:"kind"`
	URL         string         `json:"url"`
	Name        string         `json:"name"`
	Size        int64          `json:"size"`
	ContentType string         `json:"content_type"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
}

// Message belongs to exactly one conversation. Content may be empty when an
// attachment is present. Messages are soft-deleted, never removed from the
// store. ReadBy always contains the sender.
type Message struct {
	ID             string      `json:"id"`
	ClientID       string      `json:"client_id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      string      `json:"created_at"`
	Deleted        bool        `json:"deleted"`
	Edited         bool        `json:"edited"`
	ReadBy         []string    `json:"read_by"`
}

// ReadByUser reports whether id already appears in the message's reader set.
func (m *Message) ReadByUser(id string) bool {
	for _, r := range m.ReadBy {
		if r == id {
			return true
		}
	}
	return false
}

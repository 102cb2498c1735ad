package ws

import (
	"log"

	"github.com/unichat/unichat-backend/internal/cache"
	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
)

// SessionDeps are the collaborators a session wires its projectors to.
type SessionDeps struct {
	Store     *store.DB
	Users     live.UserResolver
	Tracker   *live.Tracker
	ChatCache *cache.ChatListCache
}

// Session is the per-connection view state: one subscription registry, a
// chat-list projector that runs for the whole session, and a message
// stream projector for whichever conversation is open. It is the single
// owner of all session-scoped listeners, so closing it tears everything
// down deterministically.
type Session struct {
	userID   string
	hub      *Hub
	deps     SessionDeps
	registry *live.Registry
	chatList *live.ChatList
	stream   *live.Stream
}

func NewSession(userID string, hub *Hub, deps SessionDeps) *Session {
	s := &Session{
		userID:   userID,
		hub:      hub,
		deps:     deps,
		registry: live.NewRegistry(),
	}
	s.chatList = live.NewChatList(deps.Store, deps.Users, userID, s.renderChatList)
	s.stream = live.NewStream(deps.Store, s.registry, userID, s, s)
	return s
}

// Start opens the chat-list subscriptions. The message stream stays
// closed until the client opens a conversation.
func (s *Session) Start() error {
	return s.chatList.Start(s.registry)
}

// Close tears down every scope the session registered.
func (s *Session) Close() {
	s.registry.TeardownAll()
}

// HandleCommand dispatches one decoded client command.
func (s *Session) HandleCommand(cmd Command) {
	switch cmd.Type {
	case CmdOpenConversation:
		s.openConversation(cmd.ConversationID)
	case CmdCloseConversation:
		s.stream.Close()
	case CmdMarkRead:
		id := cmd.ConversationID
		if id == "" {
			id = s.stream.Current()
		}
		if id == "" {
			return
		}
		if err := s.deps.Tracker.MarkConversationRead(id, s.userID); err != nil {
			log.Printf("session %s: mark read %s: %v", s.userID, id, err)
			s.pushError("mark_read_failed", "Could not mark conversation read")
		}
	case CmdSetVisibility:
		if cmd.Visible != nil {
			s.stream.SetVisible(*cmd.Visible)
		}
	case CmdPing:
		s.hub.SendToUser(s.userID, Envelope{Type: PushPong})
	default:
		s.pushError("unknown_command", "Unknown command type")
	}
}

func (s *Session) openConversation(id string) {
	if id == "" {
		s.pushError("missing_conversation", "conversation_id is required")
		return
	}
	conv, page, err := s.stream.Open(id)
	if err != nil {
		log.Printf("session %s: open %s: %v", s.userID, id, err)
		s.pushError("open_failed", "Could not open conversation")
		return
	}
	s.hub.SendToUser(s.userID, Envelope{Type: PushConversation, Payload: ConversationPayload{
		Conversation: conv,
		Messages:     page,
	}})

	// Opening counts as reading: reset the unread badge for this user.
	if err := s.deps.Tracker.MarkConversationRead(id, s.userID); err != nil {
		log.Printf("session %s: mark read on open %s: %v", s.userID, id, err)
	}
}

// renderChatList is the chat-list projector's render callback.
func (s *Session) renderChatList(entries []live.ChatEntry) {
	if err := s.deps.ChatCache.Set(s.userID, entries); err != nil {
		log.Printf("session %s: chat list cache: %v", s.userID, err)
	}
	s.hub.SendToUser(s.userID, Envelope{Type: PushChatList, Payload: ChatListPayload{Entries: entries}})
}

// ApplyMessages implements live.MessageView: forward ordered view
// mutations to the client.
func (s *Session) ApplyMessages(conversationID string, muts []live.Mutation) {
	if len(muts) == 0 {
		return
	}
	payload := MessageDiffPayload{ConversationID: conversationID}
	for _, m := range muts {
		var msg models.Message
		if m.Kind != live.MutRemove {
			if err := m.Entry.Doc.Decode(&msg); err != nil {
				log.Printf("session %s: undecodable entry %s: %v", s.userID, m.Entry.ID, err)
				continue
			}
		}
		msg.ID = m.Entry.ID
		payload.Mutations = append(payload.Mutations, MutationPayload{
			Kind:    m.Kind.String(),
			Index:   m.Index,
			Message: msg,
		})
	}
	s.hub.SendToUser(s.userID, Envelope{Type: PushMessageDiff, Payload: payload})
}

// Notify implements live.Notifier: transient in-app notification for a
// message in a hidden or non-open conversation.
func (s *Session) Notify(conversationID string, msg models.Message) {
	s.hub.SendToUser(s.userID, Envelope{Type: PushNotification, Payload: NotificationPayload{
		ConversationID: conversationID,
		Message:        msg,
	}})
}

func (s *Session) pushError(code, message string) {
	s.hub.SendToUser(s.userID, Envelope{Type: PushError, Payload: ErrorPayload{Code: code, Message: message}})
}

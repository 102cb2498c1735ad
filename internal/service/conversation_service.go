package service

import (
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
	"github.com/unichat/unichat-backend/internal/validation"
)

var (
	ErrSelfChat         = errors.New("cannot start a private chat with yourself")
	ErrInvalidGroupName = errors.New("invalid group name")
	ErrNoParticipants   = errors.New("a group needs at least one other participant")
)

// ConversationService creates and lists conversations.
type ConversationService struct {
	st *store.DB
}

func NewConversationService(st *store.DB) *ConversationService {
	return &ConversationService{st: st}
}

// StartPrivateChat returns the existing private conversation between the
// two users, or creates it. Uniqueness of the pair is enforced by
// query-then-create, not by a store constraint, so concurrent initiation
// from both sides can race and produce a duplicate; that is accepted
// behavior of the current design.
func (s *ConversationService) StartPrivateChat(selfID, peerID string) (*models.Conversation, error) {
	if selfID == peerID {
		return nil, ErrSelfChat
	}
	if _, err := s.st.Get("users", peerID); err != nil {
		return nil, err
	}

	// The store cannot filter on two array memberships at once, so query
	// by one participant and scan for the other.
	docs, err := s.st.RunQuery(store.In("conversations").
		Where("type", store.OpEqual, string(models.PrivateConversation)).
		Where("participants", store.OpArrayContains, selfID))
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		var c models.Conversation
		if err := d.Decode(&c); err != nil {
			return nil, err
		}
		if len(c.Participants) == 2 && c.HasParticipant(peerID) {
			c.ID = d.ID
			return &c, nil
		}
	}

	conv := models.Conversation{
		ID:           ulid.Make().String(),
		Type:         models.PrivateConversation,
		Participants: []string{selfID, peerID},
		UnreadCounts: map[string]int{selfID: 0, peerID: 0},
		CreatedAt:    store.Now(),
	}
	data, err := store.Encode(conv)
	if err != nil {
		return nil, err
	}
	if err := s.st.Set("conversations", conv.ID, data); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a group conversation with the owner as its first
// admin.
func (s *ConversationService) CreateGroup(name, ownerID string, memberIDs []string) (*models.Conversation, error) {
	name = validation.TrimAndLimit(name, validation.MaxGroupNameLength())
	if name == "" {
		return nil, ErrInvalidGroupName
	}

	participants := []string{ownerID}
	seen := map[string]bool{ownerID: true}
	for _, m := range memberIDs {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		participants = append(participants, m)
	}
	if len(participants) < 2 {
		return nil, ErrNoParticipants
	}

	counts := make(map[string]int, len(participants))
	for _, p := range participants {
		counts[p] = 0
	}

	conv := models.Conversation{
		ID:           ulid.Make().String(),
		Type:         models.GroupConversation,
		Participants: participants,
		UnreadCounts: counts,
		Name:         name,
		OwnerID:      ownerID,
		Admins:       []string{ownerID},
		CreatedAt:    store.Now(),
	}
	data, err := store.Encode(conv)
	if err != nil {
		return nil, err
	}
	if err := s.st.Set("conversations", conv.ID, data); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Get loads a conversation.
func (s *ConversationService) Get(id string) (*models.Conversation, error) {
	doc, err := s.st.Get("conversations", id)
	if err != nil {
		return nil, err
	}
	var c models.Conversation
	if err := doc.Decode(&c); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

// ListForUser returns both conversation types for a user, unmerged and
// unsorted; the chat-list projector owns ordering.
func (s *ConversationService) ListForUser(userID string) ([]models.Conversation, error) {
	docs, err := s.st.RunQuery(store.In("conversations").
		Where("participants", store.OpArrayContains, userID))
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(docs))
	for _, d := range docs {
		var c models.Conversation
		if err := d.Decode(&c); err != nil {
			return nil, err
		}
		c.ID = d.ID
		out = append(out, c)
	}
	return out, nil
}

// AddAdmin promotes a member to the group's admin set. ArrayUnion keeps
// the set duplicate-free.
func (s *ConversationService) AddAdmin(conversationID, actorID, memberID string) error {
	conv, err := s.Get(conversationID)
	if err != nil {
		return err
	}
	if conv.Type != models.GroupConversation {
		return errors.New("not a group conversation")
	}
	if !conv.IsAdmin(actorID) {
		return errors.New("only admins can promote members")
	}
	if !conv.HasParticipant(memberID) {
		return errors.New("user is not a member of this group")
	}
	return s.st.Update("conversations", conversationID,
		store.ArrayUnion("admins", memberID))
}

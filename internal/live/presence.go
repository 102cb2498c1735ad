package live

import (
	"fmt"
	"log"

	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
)

// PresenceCache mirrors online state into a fast side channel (Redis).
// All methods must tolerate the cache being unavailable.
type PresenceCache interface {
	SetOnline(userID string) error
	SetOffline(userID string) error
}

// Tracker maintains per-user presence and per-conversation read state.
// Mark-as-read is two independent operations that are not transactional
// with each other: the counter reset and the batched readBy appends.
type Tracker struct {
	st    *store.DB
	cache PresenceCache
}

func NewTracker(st *store.DB, cache PresenceCache) *Tracker {
	return &Tracker{st: st, cache: cache}
}

// SignIn marks the user online with a server timestamp.
func (t *Tracker) SignIn(userID string) error {
	err := t.st.Update("users", userID,
		store.Set("is_online", true),
		store.ServerTimestamp("last_seen"))
	if err != nil {
		return err
	}
	if t.cache != nil {
		if cerr := t.cache.SetOnline(userID); cerr != nil {
			log.Printf("presence: cache online %s: %v", userID, cerr)
		}
	}
	return nil
}

// SignOut marks the user offline synchronously before the session ends.
func (t *Tracker) SignOut(userID string) error {
	err := t.st.Update("users", userID,
		store.Set("is_online", false),
		store.ServerTimestamp("last_seen"))
	if err != nil {
		return err
	}
	if t.cache != nil {
		if cerr := t.cache.SetOffline(userID); cerr != nil {
			log.Printf("presence: cache offline %s: %v", userID, cerr)
		}
	}
	return nil
}

// DisconnectHook returns the best-effort mark-offline callback registered
// with the connection layer. Failures are logged only; if the hook never
// fires, presence goes stale.
func (t *Tracker) DisconnectHook(userID string) func() {
	return func() {
		if err := t.SignOut(userID); err != nil {
			log.Printf("presence: disconnect hook for %s: %v", userID, err)
		}
	}
}

// MarkConversationRead resets the caller's unread counter (a plain
// single-key overwrite) and separately appends the caller to every unread
// message's read_by set in one atomic batch. ArrayUnion makes the second
// step idempotent: calling twice produces the same final state.
func (t *Tracker) MarkConversationRead(conversationID, userID string) error {
	doc, err := t.st.Get("conversations", conversationID)
	if err != nil {
		return err
	}
	var conv models.Conversation
	if err := doc.Decode(&conv); err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}

	if err := t.st.Update("conversations", conversationID,
		store.Set(fmt.Sprintf("unread_counts.%s", userID), 0)); err != nil {
		return err
	}

	docs, err := t.st.RunQuery(store.In("messages").
		Where("conversation_id", store.OpEqual, conversationID).
		OrderedBy("created_at"))
	if err != nil {
		return err
	}
	batch := t.st.NewBatch()
	pending := 0
	for _, d := range docs {
		var m models.Message
		if err := d.Decode(&m); err != nil {
			return err
		}
		if m.SenderID == userID || m.ReadByUser(userID) {
			continue
		}
		batch.Update("messages", d.ID, store.ArrayUnion("read_by", userID))
		pending++
	}
	if pending == 0 {
		return nil
	}
	return batch.Commit()
}

// UnreadMessages returns the caller's unread messages in a conversation,
// oldest first. The store has no negated membership filter, so the
// reader-set check happens here.
func (t *Tracker) UnreadMessages(conversationID, userID string) ([]models.Message, error) {
	docs, err := t.st.RunQuery(store.In("messages").
		Where("conversation_id", store.OpEqual, conversationID).
		OrderedBy("created_at"))
	if err != nil {
		return nil, err
	}
	var out []models.Message
	for _, d := range docs {
		var m models.Message
		if err := d.Decode(&m); err != nil {
			return nil, err
		}
		m.ID = d.ID
		if m.SenderID == userID || m.ReadByUser(userID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

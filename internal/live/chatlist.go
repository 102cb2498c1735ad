package live

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
)

// NoMessagesPreview is rendered for conversations without any activity.
const NoMessagesPreview = "No messages yet"

const previewMaxRunes = 80

// ChatEntry is one rendered chat-list row.
type ChatEntry struct {
	ConversationID string                  `json:"conversation_id"`
	Type           models.ConversationType `json:"type"`
	Title          string                  `json:"title"`
	AvatarURL      string                  `json:"avatar_url"`
	Preview        string                  `json:"preview"`
	TimeLabel      string                  `json:"time_label"`
	LastActivity   string                  `json:"last_activity"`
	Unread         int                     `json:"unread,omitempty"`
}

// UserResolver looks up display data for private-conversation titles.
type UserResolver interface {
	ResolveUser(id string) (models.User, error)
}

// ChatList merges the private-type and group-type conversation queries
// into one rendered list for a user. It recomputes the full list on every
// change from either feed; correctness over efficiency is the accepted
// tradeoff.
type ChatList struct {
	st     *store.DB
	users  UserResolver
	userID string
	render func([]ChatEntry)

	mu      sync.Mutex
	private []models.Conversation
	groups  []models.Conversation
	done    chan struct{}
	once    sync.Once
}

// NewChatList creates a projector for userID. render is called with the
// fully recomputed list after every change.
func NewChatList(st *store.DB, users UserResolver, userID string, render func([]ChatEntry)) *ChatList {
	return &ChatList{
		st:     st,
		users:  users,
		userID: userID,
		render: render,
		done:   make(chan struct{}),
	}
}

// Start opens both conversation subscriptions, registers their cancel
// handles under the chats scope, and begins consuming. The two feeds are
// unordered relative to each other; the merge never assumes interleaving
// order.
func (p *ChatList) Start(reg *Registry) error {
	privateSub, err := p.st.Listen(store.In("conversations").
		Where("type", store.OpEqual, string(models.PrivateConversation)).
		Where("participants", store.OpArrayContains, p.userID))
	if err != nil {
		return err
	}
	groupSub, err := p.st.Listen(store.In("conversations").
		Where("type", store.OpEqual, string(models.GroupConversation)).
		Where("participants", store.OpArrayContains, p.userID))
	if err != nil {
		privateSub.Cancel()
		return err
	}

	reg.Register(ScopeChats, privateSub.Cancel)
	reg.Register(ScopeChats, groupSub.Cancel)
	reg.Register(ScopeChats, p.stopConsumer)

	go p.consume(privateSub, groupSub)
	return nil
}

func (p *ChatList) stopConsumer() {
	p.once.Do(func() { close(p.done) })
}

func (p *ChatList) consume(privateSub, groupSub *store.Subscription) {
	privDiffer := NewDiffer("created_at")
	groupDiffer := NewDiffer("created_at")
	for {
		var (
			batch  []store.Change
			d      *Differ
			isPriv bool
			ok     bool
		)
		select {
		case <-p.done:
			return
		case batch, ok = <-privateSub.Changes():
			d, isPriv = privDiffer, true
		case batch, ok = <-groupSub.Changes():
			d, isPriv = groupDiffer, false
		}
		if !ok {
			return
		}
		d.Apply(batch)

		convs, err := decodeConversations(d.Entries())
		if err != nil {
			log.Printf("chat list: decode failed for user %s: %v", p.userID, err)
			continue
		}
		p.mu.Lock()
		if isPriv {
			p.private = convs
		} else {
			p.groups = convs
		}
		merged := append(append([]models.Conversation{}, p.private...), p.groups...)
		p.mu.Unlock()

		p.render(BuildEntries(merged, p.userID, p.users, time.Now()))
	}
}

// Entries recomputes the current list on demand, for a first paint before
// the live feeds deliver.
func (p *ChatList) Entries() []ChatEntry {
	p.mu.Lock()
	merged := append(append([]models.Conversation{}, p.private...), p.groups...)
	p.mu.Unlock()
	return BuildEntries(merged, p.userID, p.users, time.Now())
}

func decodeConversations(entries []Entry) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0, len(entries))
	for _, e := range entries {
		var c models.Conversation
		if err := e.Doc.Decode(&c); err != nil {
			return nil, err
		}
		c.ID = e.ID
		out = append(out, c)
	}
	return out, nil
}

// BuildEntries is the pure projection from conversation state to rendered
// rows: deduplicated, sorted descending by last activity with inactive
// conversations after active ones.
func BuildEntries(convs []models.Conversation, userID string, users UserResolver, now time.Time) []ChatEntry {
	seen := make(map[string]bool, len(convs))
	entries := make([]ChatEntry, 0, len(convs))
	for _, c := range convs {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		entries = append(entries, buildEntry(c, userID, users, now))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastActivity, entries[j].LastActivity
		if (a == "") != (b == "") {
			return a != ""
		}
		return a > b
	})
	return entries
}

func buildEntry(c models.Conversation, userID string, users UserResolver, now time.Time) ChatEntry {
	e := ChatEntry{
		ConversationID: c.ID,
		Type:           c.Type,
		LastActivity:   c.LastActivity,
		Unread:         c.UnreadFor(userID),
	}

	if c.Type == models.GroupConversation {
		e.Title = c.Name
		e.AvatarURL = c.AvatarURL
	} else {
		peer := otherParticipant(c, userID)
		e.Title = peer
		if users != nil && peer != "" {
			if u, err := users.ResolveUser(peer); err == nil {
				e.Title = u.DisplayName
				e.AvatarURL = u.AvatarURL
			}
		}
	}

	if c.LastMessage == "" && c.LastActivity == "" {
		e.Preview = NoMessagesPreview
	} else {
		e.Preview = TruncatePreview(c.LastMessage)
	}
	if c.LastActivity != "" {
		if t, err := store.ParseTime(c.LastActivity); err == nil {
			e.TimeLabel = RelativeLabel(t, now)
		}
	}
	return e
}

func otherParticipant(c models.Conversation, userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// TruncatePreview shortens a last-message preview to a fixed rune budget.
func TruncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewMaxRunes {
		return s
	}
	return string(runes[:previewMaxRunes-1]) + "…"
}

// RelativeLabel renders a chat-list time label relative to now.
func RelativeLabel(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

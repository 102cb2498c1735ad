package live

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
)

type fakeResolver map[string]models.User

func (f fakeResolver) ResolveUser(id string) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, errors.New("no such user")
	}
	return u, nil
}

func privConv(id, peer, self, lastMessage, lastActivity string, unread int) models.Conversation {
	return models.Conversation{
		ID:           id,
		Type:         models.PrivateConversation,
		Participants: []string{self, peer},
		LastMessage:  lastMessage,
		LastActivity: lastActivity,
		UnreadCounts: map[string]int{self: unread, peer: 0},
	}
}

func TestBuildEntriesSortsByActivityDescending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	convs := []models.Conversation{
		privConv("c1", "p1", "me", "old", "2025-05-01T00:00:00.000000000Z", 0),
		privConv("c2", "p2", "me", "new", "2025-06-01T00:00:00.000000000Z", 0),
		privConv("c3", "p3", "me", "mid", "2025-05-15T00:00:00.000000000Z", 0),
	}

	entries := BuildEntries(convs, "me", nil, now)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	got := []string{entries[0].ConversationID, entries[1].ConversationID, entries[2].ConversationID}
	if got[0] != "c2" || got[1] != "c3" || got[2] != "c1" {
		t.Errorf("order = %v, want [c2 c3 c1]", got)
	}
}

func TestBuildEntriesInactiveConversationsSortLast(t *testing.T) {
	now := time.Now()
	convs := []models.Conversation{
		{ID: "fresh", Type: models.PrivateConversation, Participants: []string{"me", "p1"}},
		privConv("active", "p2", "me", "hi", store.Now(), 0),
	}

	entries := BuildEntries(convs, "me", nil, now)
	if entries[0].ConversationID != "active" || entries[1].ConversationID != "fresh" {
		t.Errorf("order = [%s %s], want active before fresh", entries[0].ConversationID, entries[1].ConversationID)
	}
	if entries[1].Preview != NoMessagesPreview {
		t.Errorf("fresh preview = %q, want %q", entries[1].Preview, NoMessagesPreview)
	}
	if entries[1].TimeLabel != "" {
		t.Errorf("fresh time label = %q, want empty", entries[1].TimeLabel)
	}
}

func TestBuildEntriesDeduplicatesByID(t *testing.T) {
	now := time.Now()
	c := privConv("c1", "p1", "me", "hi", store.Now(), 0)
	entries := BuildEntries([]models.Conversation{c, c}, "me", nil, now)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1 after dedup", len(entries))
	}
}

func TestBuildEntriesResolvesTitles(t *testing.T) {
	now := time.Now()
	users := fakeResolver{
		"p1": {ID: "p1", Username: "peer", DisplayName: "Peer One", AvatarURL: "http://a/p1.jpg"},
	}
	convs := []models.Conversation{
		privConv("c1", "p1", "me", "hi", store.Now(), 0),
		privConv("c2", "ghost", "me", "hi", store.Now(), 0),
		{
			ID:           "g1",
			Type:         models.GroupConversation,
			Participants: []string{"me", "p1"},
			Name:         "Study Group",
			AvatarURL:    "http://a/g1.jpg",
			LastMessage:  "yo",
			LastActivity: store.Now(),
		},
	}

	entries := BuildEntries(convs, "me", users, now)
	byID := make(map[string]ChatEntry, len(entries))
	for _, e := range entries {
		byID[e.ConversationID] = e
	}

	if byID["c1"].Title != "Peer One" || byID["c1"].AvatarURL != "http://a/p1.jpg" {
		t.Errorf("resolved title = %q avatar %q, want display name and avatar", byID["c1"].Title, byID["c1"].AvatarURL)
	}
	// Resolution failure falls back to the raw participant ID.
	if byID["c2"].Title != "ghost" {
		t.Errorf("unresolved title = %q, want ghost", byID["c2"].Title)
	}
	if byID["g1"].Title != "Study Group" || byID["g1"].AvatarURL != "http://a/g1.jpg" {
		t.Errorf("group title = %q, want group name", byID["g1"].Title)
	}
}

func TestBuildEntriesUnreadBadge(t *testing.T) {
	now := time.Now()
	convs := []models.Conversation{
		privConv("c1", "p1", "me", "hi", store.Now(), 3),
		privConv("c2", "p2", "me", "hi", store.Now(), 0),
	}
	entries := BuildEntries(convs, "me", nil, now)
	byID := make(map[string]ChatEntry, len(entries))
	for _, e := range entries {
		byID[e.ConversationID] = e
	}
	if byID["c1"].Unread != 3 {
		t.Errorf("c1 unread = %d, want 3", byID["c1"].Unread)
	}
	if byID["c2"].Unread != 0 {
		t.Errorf("c2 unread = %d, want 0", byID["c2"].Unread)
	}
}

func TestTruncatePreview(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Short preview unchanged", "hello", "hello"},
		{"Exactly at budget unchanged", strings.Repeat("a", 80), strings.Repeat("a", 80)},
		{"Over budget gets ellipsis", strings.Repeat("a", 100), strings.Repeat("a", 79) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncatePreview(tt.input)
			if got != tt.want {
				t.Errorf("TruncatePreview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncatePreviewCountsRunesNotBytes(t *testing.T) {
	input := strings.Repeat("日", 80)
	if got := TruncatePreview(input); got != input {
		t.Errorf("80-rune multibyte preview truncated: %q", got)
	}
}

func TestRelativeLabel(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"Under a minute", now.Add(-30 * time.Second), "just now"},
		{"Minutes", now.Add(-5 * time.Minute), "5m"},
		{"Hours", now.Add(-3 * time.Hour), "3h"},
		{"Days", now.Add(-2 * 24 * time.Hour), "2d"},
		{"Older than a week", now.Add(-10 * 24 * time.Hour), "Jun 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RelativeLabel(tt.at, now)
			if got != tt.want {
				t.Errorf("RelativeLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatListRendersOnConversationChanges(t *testing.T) {
	db, err := store.OpenMem()
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer db.Close()

	conv, err := store.Encode(privConv("", "p1", "me", "hi", store.Now(), 1))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := db.Set("conversations", "c1", conv); err != nil {
		t.Fatalf("Set: %v", err)
	}

	renders := make(chan []ChatEntry, 8)
	reg := NewRegistry()
	cl := NewChatList(db, nil, "me", func(entries []ChatEntry) { renders <- entries })
	if err := cl.Start(reg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer reg.TeardownAll()

	select {
	case entries := <-renders:
		if len(entries) != 1 || entries[0].ConversationID != "c1" {
			t.Fatalf("initial render = %+v, want [c1]", entries)
		}
		if entries[0].Unread != 1 {
			t.Errorf("unread = %d, want 1", entries[0].Unread)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial render")
	}

	// A counter reset re-renders with the badge cleared.
	if err := db.Update("conversations", "c1", store.Set("unread_counts.me", 0)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	select {
	case entries := <-renders:
		if len(entries) != 1 || entries[0].Unread != 0 {
			t.Fatalf("render after reset = %+v, want unread 0", entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no render after counter reset")
	}
}

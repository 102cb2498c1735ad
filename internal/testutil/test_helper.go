package testutil

import (
	"os"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
)

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// OpenStore returns an in-memory document store wired into test cleanup.
func OpenStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMem()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return db
}

// SeedUser writes a user document and returns the model.
func SeedUser(t *testing.T, db *store.DB, username string) models.User {
	t.Helper()
	u := models.User{
		ID:          ulid.Make().String(),
		Username:    username,
		Email:       username + "@example.com",
		DisplayName: username,
		Role:        models.RoleStudent,
		CreatedAt:   store.Now(),
	}
	data, err := store.Encode(u)
	if err != nil {
		t.Fatalf("encode user %s: %v", username, err)
	}
	if err := db.Set("users", u.ID, data); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

// SeedConversation writes a conversation document and returns the model.
func SeedConversation(t *testing.T, db *store.DB, convType models.ConversationType, participants ...string) models.Conversation {
	t.Helper()
	counts := make(map[string]int, len(participants))
	for _, p := range participants {
		counts[p] = 0
	}
	c := models.Conversation{
		ID:           ulid.Make().String(),
		Type:         convType,
		Participants: participants,
		UnreadCounts: counts,
		CreatedAt:    store.Now(),
		LastActivity: store.Now(),
	}
	if convType == models.GroupConversation && len(participants) > 0 {
		c.Name = "Test Group"
		c.OwnerID = participants[0]
		c.Admins = []string{participants[0]}
	}
	data, err := store.Encode(c)
	if err != nil {
		t.Fatalf("encode conversation: %v", err)
	}
	if err := db.Set("conversations", c.ID, data); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return c
}

// SeedMessage writes a message document and returns the model. The sender
// is always in read_by, matching what the send path writes.
func SeedMessage(t *testing.T, db *store.DB, conversationID, senderID, content string) models.Message {
	t.Helper()
	m := models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      store.Now(),
		ReadBy:         []string{senderID},
	}
	data, err := store.Encode(m)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	if err := db.Set("messages", m.ID, data); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

// SetupTestEnv sets up required environment variables for testing
func (h *TestHelper) SetupTestEnv() {
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")
	os.Setenv("PASSWORD_MIN_LENGTH", "10")
}

// TeardownTestEnv cleans up environment variables after testing
func (h *TestHelper) TeardownTestEnv() {
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("PASSWORD_MIN_LENGTH")
}

// AssertError checks if an error occurred when it should (or shouldn't)
func (h *TestHelper) AssertError(err error, shouldErr bool, testName string) {
	if (err != nil) != shouldErr {
		if shouldErr {
			h.t.Errorf("%s: expected error but got nil", testName)
		} else {
			h.t.Errorf("%s: unexpected error: %v", testName, err)
		}
	}
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(got, want interface{}, testName string) {
	if got != want {
		h.t.Errorf("%s: got %v, want %v", testName, got, want)
	}
}

package store

import (
	"errors"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMem()
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetSetDelete(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Get("users", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	if err := db.Set("users", "u1", map[string]any{"username": "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := db.Get("users", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["username"] != "alice" {
		t.Errorf("username = %v, want alice", doc.Data["username"])
	}

	if err := db.Delete("users", "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get("users", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting a missing document is a no-op.
	if err := db.Delete("users", "u1"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	db := openTestDB(t)
	err := db.Update("messages", "missing", Set("content", "x"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestUpdateAppliesPartialMutations(t *testing.T) {
	db := openTestDB(t)
	if err := db.Set("conversations", "c1", map[string]any{
		"last_message":  "",
		"unread_counts": map[string]any{"u1": float64(0)},
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	err := db.Update("conversations", "c1",
		Set("last_message", "hi"),
		Increment("unread_counts.u2", 1),
	)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := db.Get("conversations", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["last_message"] != "hi" {
		t.Errorf("last_message = %v, want hi", doc.Data["last_message"])
	}
	counts := doc.Data["unread_counts"].(map[string]any)
	if counts["u1"] != float64(0) || counts["u2"] != float64(1) {
		t.Errorf("unread_counts = %v, want u1=0 u2=1", counts)
	}
}

func TestRunQueryFiltersOrdersAndLimits(t *testing.T) {
	db := openTestDB(t)
	docs := []struct {
		id   string
		data map[string]any
	}{
		{"m1", map[string]any{"conversation_id": "c1", "created_at": "2025-01-01T00:00:00.000000000Z"}},
		{"m2", map[string]any{"conversation_id": "c1", "created_at": "2025-01-03T00:00:00.000000000Z"}},
		{"m3", map[string]any{"conversation_id": "c1", "created_at": "2025-01-02T00:00:00.000000000Z"}},
		{"m4", map[string]any{"conversation_id": "c2", "created_at": "2025-01-04T00:00:00.000000000Z"}},
	}
	for _, d := range docs {
		if err := db.Set("messages", d.id, d.data); err != nil {
			t.Fatalf("Set %s: %v", d.id, err)
		}
	}

	got, err := db.RunQuery(
		In("messages").
			Where("conversation_id", OpEqual, "c1").
			OrderedBy("created_at").
			Descending().
			WithLimit(2),
	)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d documents, want 2", len(got))
	}
	if got[0].ID != "m2" || got[1].ID != "m3" {
		t.Errorf("order = [%s %s], want [m2 m3]", got[0].ID, got[1].ID)
	}
}

func TestRunQueryTiesBreakOnID(t *testing.T) {
	db := openTestDB(t)
	same := "2025-01-01T00:00:00.000000000Z"
	for _, id := range []string{"b", "a", "c"} {
		if err := db.Set("messages", id, map[string]any{"created_at": same}); err != nil {
			t.Fatalf("Set %s: %v", id, err)
		}
	}

	got, err := db.RunQuery(In("messages").OrderedBy("created_at"))
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	if ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("tie order = %v, want [a b c]", ids)
	}
}

func TestWriteBatchLaterOpsSeeEarlierWrites(t *testing.T) {
	db := openTestDB(t)

	err := db.NewBatch().
		Set("conversations", "c1", map[string]any{"unread_counts": map[string]any{}}).
		Update("conversations", "c1", Increment("unread_counts.u1", 1)).
		Update("conversations", "c1", Increment("unread_counts.u1", 1)).
		Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	doc, err := db.Get("conversations", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	counts := doc.Data["unread_counts"].(map[string]any)
	if counts["u1"] != float64(2) {
		t.Errorf("u1 = %v, want 2", counts["u1"])
	}
}

func TestWriteBatchFailureLeavesStoreUntouched(t *testing.T) {
	db := openTestDB(t)
	if err := db.Set("messages", "m1", map[string]any{"content": "keep"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	err := db.NewBatch().
		Update("messages", "m1", Set("content", "changed")).
		Update("messages", "missing", Set("content", "x")).
		Commit()
	if err == nil {
		t.Fatal("Commit succeeded, want error on missing document")
	}

	doc, err := db.Get("messages", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["content"] != "keep" {
		t.Errorf("content = %v, want keep (batch must not partially apply)", doc.Data["content"])
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := db.Set("users", "u1", map[string]any{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after close = %v, want ErrClosed", err)
	}
	if _, err := db.RunQuery(In("users")); !errors.Is(err, ErrClosed) {
		t.Errorf("RunQuery after close = %v, want ErrClosed", err)
	}
}

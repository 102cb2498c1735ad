package live

import (
	"testing"

	"github.com/unichat/unichat-backend/internal/store"
)

func msgDoc(id, createdAt, content string) store.Document {
	return store.Document{
		ID: id,
		Data: map[string]any{
			"created_at": createdAt,
			"content":    content,
		},
	}
}

func added(doc store.Document) store.Change {
	return store.Change{Kind: store.Added, Doc: doc}
}

func entryIDs(d *Differ) []string {
	entries := d.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestDifferInsertsInSortOrder(t *testing.T) {
	d := NewDiffer("created_at")
	muts := d.Apply([]store.Change{
		added(msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "first")),
		added(msgDoc("m2", "2025-01-02T00:00:00.000000000Z", "second")),
	})

	if len(muts) != 2 {
		t.Fatalf("mutations = %d, want 2", len(muts))
	}
	if muts[0].Kind != MutInsert || muts[0].Index != 0 {
		t.Errorf("first mutation = %v@%d, want insert@0", muts[0].Kind, muts[0].Index)
	}
	if muts[1].Kind != MutInsert || muts[1].Index != 1 {
		t.Errorf("second mutation = %v@%d, want insert@1", muts[1].Kind, muts[1].Index)
	}
}

// A later batch may carry a document whose sort key precedes already-held
// entries. The insert must land at the sorted position, not at the end.
func TestDifferLateArrivalInsertsAtSortedPosition(t *testing.T) {
	d := NewDiffer("created_at")
	d.Apply([]store.Change{
		added(msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "a")),
		added(msgDoc("m3", "2025-01-03T00:00:00.000000000Z", "c")),
	})

	muts := d.Apply([]store.Change{
		added(msgDoc("m2", "2025-01-02T00:00:00.000000000Z", "b")),
	})
	if len(muts) != 1 || muts[0].Kind != MutInsert || muts[0].Index != 1 {
		t.Fatalf("mutation = %+v, want insert at index 1", muts)
	}

	ids := entryIDs(d)
	if ids[0] != "m1" || ids[1] != "m2" || ids[2] != "m3" {
		t.Errorf("entry order = %v, want [m1 m2 m3]", ids)
	}
}

func TestDifferEqualSortKeysBreakTiesOnID(t *testing.T) {
	d := NewDiffer("created_at")
	same := "2025-01-01T00:00:00.000000000Z"
	d.Apply([]store.Change{added(msgDoc("b", same, "x"))})
	d.Apply([]store.Change{added(msgDoc("a", same, "y"))})
	d.Apply([]store.Change{added(msgDoc("c", same, "z"))})

	ids := entryIDs(d)
	if ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("entry order = %v, want [a b c]", ids)
	}
}

func TestDifferModifiedKeepsPosition(t *testing.T) {
	d := NewDiffer("created_at")
	d.Apply([]store.Change{
		added(msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "a")),
		added(msgDoc("m2", "2025-01-02T00:00:00.000000000Z", "b")),
	})

	edited := msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "a (edited)")
	muts := d.Apply([]store.Change{{Kind: store.Modified, Doc: edited}})
	if len(muts) != 1 || muts[0].Kind != MutReplace || muts[0].Index != 0 {
		t.Fatalf("mutation = %+v, want replace at index 0", muts)
	}

	entries := d.Entries()
	if entries[0].Doc.Data["content"] != "a (edited)" {
		t.Errorf("content = %v, want edited copy", entries[0].Doc.Data["content"])
	}
}

func TestDifferRemovedShiftsFollowingEntries(t *testing.T) {
	d := NewDiffer("created_at")
	d.Apply([]store.Change{
		added(msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "a")),
		added(msgDoc("m2", "2025-01-02T00:00:00.000000000Z", "b")),
		added(msgDoc("m3", "2025-01-03T00:00:00.000000000Z", "c")),
	})

	muts := d.Apply([]store.Change{{Kind: store.Removed, Doc: store.Document{ID: "m2"}}})
	if len(muts) != 1 || muts[0].Kind != MutRemove || muts[0].Index != 1 {
		t.Fatalf("mutation = %+v, want remove at index 1", muts)
	}

	ids := entryIDs(d)
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m3" {
		t.Errorf("entry order = %v, want [m1 m3]", ids)
	}
}

func TestDifferReplayedAddedBecomesReplace(t *testing.T) {
	d := NewDiffer("created_at")
	doc := msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "a")
	d.Apply([]store.Change{added(doc)})

	muts := d.Apply([]store.Change{added(msgDoc("m1", "2025-01-01T00:00:00.000000000Z", "a2"))})
	if len(muts) != 1 || muts[0].Kind != MutReplace || muts[0].Index != 0 {
		t.Fatalf("mutation = %+v, want replace at index 0", muts)
	}
	if d.Len() != 1 {
		t.Errorf("len = %d, want 1", d.Len())
	}
}

func TestDifferIgnoresUnknownModifiedAndRemoved(t *testing.T) {
	d := NewDiffer("created_at")
	muts := d.Apply([]store.Change{
		{Kind: store.Modified, Doc: msgDoc("ghost", "2025-01-01T00:00:00.000000000Z", "x")},
		{Kind: store.Removed, Doc: store.Document{ID: "ghost"}},
	})
	if len(muts) != 0 {
		t.Errorf("mutations = %+v, want none", muts)
	}
}

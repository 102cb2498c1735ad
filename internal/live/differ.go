package live

import (
	"sort"

	"github.com/unichat/unichat-backend/internal/store"
)

type MutationKind int

const (
	MutInsert MutationKind = iota
	MutReplace
	MutRemove
)

func (k MutationKind) String() string {
	switch k {
	case MutInsert:
		return "insert"
	case MutReplace:
		return "replace"
	case MutRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Entry is one rendered row tracked by a Differ.
type Entry struct {
	ID      string
	SortKey string
	Doc     store.Document
}

// Mutation is one view command produced from a diff batch: insert Entry at
// Index, replace the entry at Index, or remove the entry at Index.
type Mutation struct {
	Kind  MutationKind
	Index int
	Entry Entry
}

// Differ converts live-query diff batches into ordered view mutations. The
// backing query is sorted ascending by orderField, but batches are not
// globally ordered: a later batch may carry earlier-keyed documents, so
// every insert re-sorts by (sort key, id) instead of appending.
type Differ struct {
	orderField string
	entries    []Entry
}

func NewDiffer(orderField string) *Differ {
	return &Differ{orderField: orderField}
}

// Entries returns a copy of the current ordered view state.
func (d *Differ) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of tracked entries.
func (d *Differ) Len() int {
	return len(d.entries)
}

// Apply folds one diff batch into the view and returns the mutations in
// application order. Unrelated entries are never reordered.
func (d *Differ) Apply(batch []store.Change) []Mutation {
	var muts []Mutation
	for _, ch := range batch {
		switch ch.Kind {
		case store.Added:
			e := d.entryFor(ch.Doc)
			if i, ok := d.indexOf(e.ID); ok {
				// Replay of a known document, treat as replace.
				d.entries[i] = e
				muts = append(muts, Mutation{Kind: MutReplace, Index: i, Entry: e})
				continue
			}
			i := d.insertionPoint(e)
			d.entries = append(d.entries, Entry{})
			copy(d.entries[i+1:], d.entries[i:])
			d.entries[i] = e
			muts = append(muts, Mutation{Kind: MutInsert, Index: i, Entry: e})
		case store.Modified:
			i, ok := d.indexOf(ch.Doc.ID)
			if !ok {
				continue
			}
			e := d.entryFor(ch.Doc)
			e.SortKey = d.entries[i].SortKey
			d.entries[i] = e
			muts = append(muts, Mutation{Kind: MutReplace, Index: i, Entry: e})
		case store.Removed:
			i, ok := d.indexOf(ch.Doc.ID)
			if !ok {
				continue
			}
			removed := d.entries[i]
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			muts = append(muts, Mutation{Kind: MutRemove, Index: i, Entry: removed})
		}
	}
	return muts
}

func (d *Differ) entryFor(doc store.Document) Entry {
	key := ""
	if v, ok := doc.Data[d.orderField]; ok {
		if s, ok := v.(string); ok {
			key = s
		}
	}
	return Entry{ID: doc.ID, SortKey: key, Doc: doc}
}

func (d *Differ) indexOf(id string) (int, bool) {
	for i, e := range d.entries {
		if e.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (d *Differ) insertionPoint(e Entry) int {
	return sort.Search(len(d.entries), func(i int) bool {
		c := d.entries[i]
		if c.SortKey != e.SortKey {
			return c.SortKey > e.SortKey
		}
		return c.ID > e.ID
	})
}

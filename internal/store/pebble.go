package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// DB is a document store over a Pebble keyspace with an in-process
// live-query engine. Writes serialize under one mutex; every committed
// write re-evaluates the subscriptions watching the touched collections.
type DB struct {
	pdb *pebble.DB

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextSub uint64
	closed  bool
}

// Open opens (or creates) the store at path.
func Open(path string) (*DB, error) {
	pdb, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &DB{pdb: pdb, subs: make(map[uint64]*Subscription)}, nil
}

// OpenMem opens a store backed by an in-memory filesystem. Used by tests
// and local development.
func OpenMem() (*DB, error) {
	pdb, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &DB{pdb: pdb, subs: make(map[uint64]*Subscription)}, nil
}

// Close cancels every live subscription and closes the keyspace.
func (s *DB) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[uint64]*Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return s.pdb.Close()
}

func docKey(collection, id string) []byte {
	return []byte("doc/" + collection + "/" + id)
}

func collectionBounds(collection string) (lower, upper []byte) {
	lower = []byte("doc/" + collection + "/")
	upper = append([]byte(nil), lower...)
	upper[len(upper)-1]++
	return lower, upper
}

// Get returns the document or ErrNotFound.
func (s *DB) Get(collection, id string) (Document, error) {
	raw, closer, err := s.pdb.Get(docKey(collection, id))
	if err == pebble.ErrNotFound {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	defer closer.Close()

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Document{}, fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Data: data}, nil
}

// Set overwrites the document.
func (s *DB) Set(collection, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.pdb.Set(docKey(collection, id), raw, pebble.Sync); err != nil {
		return err
	}
	s.notifyLocked(collection)
	return nil
}

// Update applies partial dot-path mutations to an existing document.
// Returns ErrNotFound when the document does not exist.
func (s *DB) Update(collection, id string, ups ...Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	doc, err := s.Get(collection, id)
	if err != nil {
		return err
	}
	if err := applyUpdates(doc.Data, time.Now(), ups); err != nil {
		return err
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return err
	}
	if err := s.pdb.Set(docKey(collection, id), raw, pebble.Sync); err != nil {
		return err
	}
	s.notifyLocked(collection)
	return nil
}

// Delete removes the document. Deleting a missing document is a no-op.
func (s *DB) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.pdb.Delete(docKey(collection, id), pebble.Sync); err != nil {
		return err
	}
	s.notifyLocked(collection)
	return nil
}

// RunQuery evaluates a one-shot query.
func (s *DB) RunQuery(q Query) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.evalQuery(q)
}

// evalQuery scans the collection, filters, orders and limits. Caller holds
// the store mutex.
func (s *DB) evalQuery(q Query) ([]Document, error) {
	lower, upper := collectionBounds(q.Collection)
	iter, err := s.pdb.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Document
	for iter.First(); iter.Valid(); iter.Next() {
		var data map[string]any
		if err := json.Unmarshal(iter.Value(), &data); err != nil {
			return nil, fmt.Errorf("corrupt document at %s: %w", iter.Key(), err)
		}
		if !matches(data, q.Filters) {
			continue
		}
		id := string(iter.Key()[len(lower):])
		out = append(out, Document{ID: id, Data: data})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			vi, _ := getPath(out[i].Data, q.OrderBy)
			vj, _ := getPath(out[j].Data, q.OrderBy)
			c := compareValues(vi, vj)
			if c == 0 {
				c = compareValues(out[i].ID, out[j].ID)
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type batchOpKind int

const (
	batchSet batchOpKind = iota
	batchUpdate
	batchDelete
)

type batchOp struct {
	kind       batchOpKind
	collection string
	id         string
	data       map[string]any
	ups        []Update
}

// WriteBatch stages multi-document writes that commit atomically: either
// every operation lands or none do.
type WriteBatch struct {
	db  *DB
	ops []batchOp
}

func (s *DB) NewBatch() *WriteBatch {
	return &WriteBatch{db: s}
}

func (b *WriteBatch) Set(collection, id string, data map[string]any) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchSet, collection: collection, id: id, data: data})
	return b
}

func (b *WriteBatch) Update(collection, id string, ups ...Update) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchUpdate, collection: collection, id: id, ups: ups})
	return b
}

func (b *WriteBatch) Delete(collection, id string) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchDelete, collection: collection, id: id})
	return b
}

// Commit applies the staged operations in order. Later operations observe
// earlier ones within the same batch.
func (b *WriteBatch) Commit() error {
	s := b.db
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	pb := s.pdb.NewBatch()
	defer pb.Close()

	now := time.Now()
	staged := make(map[string][]byte)
	deleted := make(map[string]bool)
	touched := make(map[string]bool)

	for _, op := range b.ops {
		key := string(docKey(op.collection, op.id))
		touched[op.collection] = true
		switch op.kind {
		case batchSet:
			raw, err := json.Marshal(op.data)
			if err != nil {
				return err
			}
			if err := pb.Set([]byte(key), raw, nil); err != nil {
				return err
			}
			staged[key] = raw
			delete(deleted, key)
		case batchUpdate:
			var data map[string]any
			if raw, ok := staged[key]; ok {
				if err := json.Unmarshal(raw, &data); err != nil {
					return err
				}
			} else if deleted[key] {
				return fmt.Errorf("update %s/%s: %w", op.collection, op.id, ErrNotFound)
			} else {
				doc, err := s.Get(op.collection, op.id)
				if err != nil {
					return fmt.Errorf("update %s/%s: %w", op.collection, op.id, err)
				}
				data = doc.Data
			}
			if err := applyUpdates(data, now, op.ups); err != nil {
				return err
			}
			raw, err := json.Marshal(data)
			if err != nil {
				return err
			}
			if err := pb.Set([]byte(key), raw, nil); err != nil {
				return err
			}
			staged[key] = raw
		case batchDelete:
			if err := pb.Delete([]byte(key), nil); err != nil {
				return err
			}
			delete(staged, key)
			deleted[key] = true
		}
	}

	if err := s.pdb.Apply(pb, pebble.Sync); err != nil {
		return err
	}
	cols := make([]string, 0, len(touched))
	for c := range touched {
		cols = append(cols, c)
	}
	s.notifyLocked(cols...)
	return nil
}

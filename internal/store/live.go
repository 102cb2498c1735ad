package store

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Subscription is a live query: a cancellable stream of diff batches. The
// first batch replays the initial result set as Added records; subsequent
// batches describe incremental changes in query order. Batches for one
// subscription arrive in order; two subscriptions are unordered relative
// to each other.
type Subscription struct {
	id    uint64
	db    *DB
	query Query

	// known maps document ID to its serialized payload at the last
	// delivered batch, used to classify added/modified/removed.
	known map[string][]byte

	mu      sync.Mutex
	pending [][]Change
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	out     chan []Change
}

// Changes returns the batch stream. The channel closes after Cancel.
func (sub *Subscription) Changes() <-chan []Change {
	return sub.out
}

// Cancel detaches the subscription and closes the stream. Safe to call
// more than once.
func (sub *Subscription) Cancel() {
	sub.db.mu.Lock()
	delete(sub.db.subs, sub.id)
	sub.db.mu.Unlock()
	sub.stop()
}

func (sub *Subscription) stop() {
	sub.once.Do(func() { close(sub.done) })
}

// Listen registers a live query. The initial result set is delivered as
// the first batch.
func (s *DB) Listen(q Query) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	docs, err := s.evalQuery(q)
	if err != nil {
		return nil, err
	}

	s.nextSub++
	sub := &Subscription{
		id:    s.nextSub,
		db:    s,
		query: q,
		known: make(map[string][]byte, len(docs)),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		out:   make(chan []Change),
	}

	initial := make([]Change, 0, len(docs))
	for _, d := range docs {
		raw, err := json.Marshal(d.Data)
		if err != nil {
			return nil, err
		}
		sub.known[d.ID] = raw
		initial = append(initial, Change{Kind: Added, Doc: d})
	}
	if len(initial) > 0 {
		sub.pending = append(sub.pending, initial)
	}

	s.subs[sub.id] = sub
	go sub.pump()
	if len(sub.pending) > 0 {
		sub.wakeUp()
	}
	return sub, nil
}

// notifyLocked re-evaluates every subscription watching one of the touched
// collections and enqueues a diff batch for each that changed. Caller
// holds the store mutex.
func (s *DB) notifyLocked(collections ...string) {
	for _, sub := range s.subs {
		watched := false
		for _, c := range collections {
			if sub.query.Collection == c {
				watched = true
				break
			}
		}
		if !watched {
			continue
		}
		docs, err := s.evalQuery(sub.query)
		if err != nil {
			continue
		}
		batch := sub.diff(docs)
		if len(batch) == 0 {
			continue
		}
		sub.enqueue(batch)
	}
}

// diff classifies the fresh result set against the last delivered one and
// updates the known map. Added and Modified records are emitted in query
// order, Removed records after them.
func (sub *Subscription) diff(docs []Document) []Change {
	var batch []Change
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		raw, err := json.Marshal(d.Data)
		if err != nil {
			continue
		}
		seen[d.ID] = true
		prev, ok := sub.known[d.ID]
		switch {
		case !ok:
			batch = append(batch, Change{Kind: Added, Doc: d})
		case !bytes.Equal(prev, raw):
			batch = append(batch, Change{Kind: Modified, Doc: d})
		}
		sub.known[d.ID] = raw
	}
	for id := range sub.known {
		if seen[id] {
			continue
		}
		delete(sub.known, id)
		batch = append(batch, Change{Kind: Removed, Doc: Document{ID: id}})
	}
	return batch
}

func (sub *Subscription) enqueue(batch []Change) {
	sub.mu.Lock()
	sub.pending = append(sub.pending, batch)
	sub.mu.Unlock()
	sub.wakeUp()
}

func (sub *Subscription) wakeUp() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued batches to the consumer outside the store mutex,
// preserving enqueue order.
func (sub *Subscription) pump() {
	defer close(sub.out)
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		for {
			sub.mu.Lock()
			if len(sub.pending) == 0 {
				sub.mu.Unlock()
				break
			}
			batch := sub.pending[0]
			sub.pending = sub.pending[1:]
			sub.mu.Unlock()

			select {
			case sub.out <- batch:
			case <-sub.done:
				return
			}
		}
	}
}

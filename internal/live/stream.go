package live

import (
	"errors"
	"log"
	"sync"

	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
)

// DefaultInitialPage is how many recent messages are fetched synchronously
// for first paint before the live query takes over.
const DefaultInitialPage = 50

var ErrNotParticipant = errors.New("user is not a participant of this conversation")

// MessageView receives ordered view mutations for the open conversation.
type MessageView interface {
	ApplyMessages(conversationID string, muts []Mutation)
}

// Notifier raises a transient in-app notification for a message that
// arrived while its conversation was not visible.
type Notifier interface {
	Notify(conversationID string, msg models.Message)
}

// Stream is the per-session message stream projector. Opening a
// conversation tears down the previous messages subscription, fetches the
// conversation and an initial page, then consumes the live query. A
// generation counter guarantees a superseded stream never mutates the
// view after its replacement opened.
type Stream struct {
	st       *store.DB
	reg      *Registry
	userID   string
	view     MessageView
	notifier Notifier

	mu      sync.Mutex
	gen     uint64
	current string
	visible bool

	InitialPage int
}

func NewStream(st *store.DB, reg *Registry, userID string, view MessageView, notifier Notifier) *Stream {
	return &Stream{
		st:          st,
		reg:         reg,
		userID:      userID,
		view:        view,
		notifier:    notifier,
		visible:     true,
		InitialPage: DefaultInitialPage,
	}
}

// Current returns the open conversation ID, empty when closed.
func (s *Stream) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetVisible flags whether the view is on screen. While hidden, incoming
// messages raise notifications instead of being marked read.
func (s *Stream) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

// Open switches the stream to conversationID. It returns the conversation
// and the initial ascending page for first paint; the live feed delivers
// everything from there on, including the initial page again as Added
// records for the consumer-side differ.
func (s *Stream) Open(conversationID string) (models.Conversation, []models.Message, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.current = conversationID
	s.mu.Unlock()

	// Teardown must complete before the new subscription registers,
	// otherwise a stale listener can interleave batches into this view.
	s.reg.Teardown(ScopeMessages)

	doc, err := s.st.Get("conversations", conversationID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	var conv models.Conversation
	if err := doc.Decode(&conv); err != nil {
		return models.Conversation{}, nil, err
	}
	conv.ID = conversationID
	if !conv.HasParticipant(s.userID) {
		return models.Conversation{}, nil, ErrNotParticipant
	}

	page, err := s.initialPage(conversationID)
	if err != nil {
		return models.Conversation{}, nil, err
	}

	sub, err := s.st.Listen(store.In("messages").
		Where("conversation_id", store.OpEqual, conversationID).
		OrderedBy("created_at"))
	if err != nil {
		return models.Conversation{}, nil, err
	}
	s.reg.Register(ScopeMessages, sub.Cancel)

	go s.consume(gen, conversationID, sub)
	return conv, page, nil
}

// Close tears down the open stream.
func (s *Stream) Close() {
	s.mu.Lock()
	s.gen++
	s.current = ""
	s.mu.Unlock()
	s.reg.Teardown(ScopeMessages)
}

func (s *Stream) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Stream) initialPage(conversationID string) ([]models.Message, error) {
	docs, err := s.st.RunQuery(store.Query{
		Collection: "messages",
		Filters: []store.Filter{
			{Field: "conversation_id", Op: store.OpEqual, Value: conversationID},
		},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   s.InitialPage,
	})
	if err != nil {
		return nil, err
	}
	// Most recent N, returned ascending.
	msgs := make([]models.Message, len(docs))
	for i, d := range docs {
		var m models.Message
		if err := d.Decode(&m); err != nil {
			return nil, err
		}
		m.ID = d.ID
		msgs[len(docs)-1-i] = m
	}
	return msgs, nil
}

func (s *Stream) consume(gen uint64, conversationID string, sub *store.Subscription) {
	differ := NewDiffer("created_at")
	for batch := range sub.Changes() {
		muts := differ.Apply(batch)
		if !s.isCurrent(gen) {
			return
		}
		s.view.ApplyMessages(conversationID, muts)

		for _, ch := range batch {
			if ch.Kind != store.Added {
				continue
			}
			var m models.Message
			if err := ch.Doc.Decode(&m); err != nil {
				log.Printf("stream %s: undecodable message %s: %v", conversationID, ch.Doc.ID, err)
				continue
			}
			m.ID = ch.Doc.ID
			if m.SenderID == s.userID || m.ReadByUser(s.userID) {
				continue
			}

			s.mu.Lock()
			visible := s.visible && s.current == conversationID && s.gen == gen
			s.mu.Unlock()
			if !visible {
				if s.notifier != nil {
					s.notifier.Notify(conversationID, m)
				}
				continue
			}
			// Fire and forget: failure is logged, not retried, not
			// surfaced to the user.
			go func(msgID string) {
				err := s.st.Update("messages", msgID, store.ArrayUnion("read_by", s.userID))
				if err != nil {
					log.Printf("stream %s: mark read %s failed: %v", conversationID, msgID, err)
				}
			}(m.ID)
		}
	}
}

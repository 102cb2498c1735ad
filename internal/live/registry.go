// Package live implements the view synchronization core: it turns the
// store's live-query diff batches into ordered view state for the chat
// list and the open conversation, and keeps presence and read state
// consistent with the store.
package live

import "sync"

// Scope names a group of live subscriptions that are torn down together.
type Scope string

const (
	ScopeChats    Scope = "chats"
	ScopeMessages Scope = "messages"
	ScopeGroups   Scope = "groups"
	ScopeContacts Scope = "contacts"
)

// Registry tracks active live-query cancel handles per scope so a view
// can be shut down deterministically before its replacement opens.
type Registry struct {
	mu     sync.Mutex
	scopes map[Scope][]func()
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[Scope][]func())}
}

// Register appends a cancel handle to the scope.
func (r *Registry) Register(scope Scope, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[scope] = append(r.scopes[scope], cancel)
}

// Teardown cancels every handle in the scope and clears it. It is
// idempotent and synchronous: when it returns, every cancel has run, so
// it is safe to register a replacement subscription for the same scope.
func (r *Registry) Teardown(scope Scope) {
	r.mu.Lock()
	cancels := r.scopes[scope]
	delete(r.scopes, scope)
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// TeardownAll tears down every scope. Used when a session ends.
func (r *Registry) TeardownAll() {
	r.mu.Lock()
	all := r.scopes
	r.scopes = make(map[Scope][]func())
	r.mu.Unlock()

	for _, cancels := range all {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Active returns the number of registered handles in the scope.
func (r *Registry) Active(scope Scope) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes[scope])
}

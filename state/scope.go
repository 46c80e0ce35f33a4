package state

import (
	"sync"

	"github.com/google/uuid"
)

// Scope is the explicit "closeable" trait spec.md §9 calls for in place of
// destructors: every Peer, every LinkInterface and the Controller itself
// own one. Closing a scope synchronously closes every child scope it owns
// first, then runs its own teardown callbacks in LIFO order — so a Peer's
// scope closing never races the LinkInterface scope that contains it, and a
// callback registered last (typically the innermost resource) unwinds
// first.
type Scope struct {
	id uuid.UUID

	mu       sync.Mutex
	onClose  []func()
	children []*Scope
	closed   bool
}

// ID uniquely identifies this scope for log correlation — tying a "peer
// gone" line back to the admission/bootstrap line that created its scope.
func (s *Scope) ID() uuid.UUID { return s.id }

// NewScope creates a scope, optionally nested under parent. When parent is
// closed, child scopes close first, in the reverse order they were added.
func NewScope(parent *Scope) *Scope {
	s := &Scope{id: uuid.New()}
	if parent != nil {
		parent.mu.Lock()
		if parent.closed {
			parent.mu.Unlock()
			s.closed = true
			return s
		}
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return s
}

// OnClose registers fn to run when the scope closes. If the scope is
// already closed, fn runs immediately.
func (s *Scope) OnClose(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Close releases the scope: every child scope is closed first (most
// recently created first), then this scope's own callbacks run in LIFO
// order. Close is idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	children := s.children
	s.children = nil
	callbacks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Close()
	}
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}
}

// Closed reports whether the scope has been released.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

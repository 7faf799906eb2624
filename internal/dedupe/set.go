// ABOUTME: Bounded set of message ids that have already been rendered.
// ABOUTME: Shared by history loading, bot replies and the agent message poller.

package dedupe

import (
	"container/list"
	"sync"

	"github.com/2389/coven-widget/internal/backend"
)

// DefaultLimit bounds a Set built without WithLimit. A widget conversation
// rarely gets near it; the bound only protects very long sessions.
const DefaultLimit = 2000

// Set remembers message ids. The least recently claimed id is forgotten
// once the set is full. Ids never expire with time: the poller re-reads the
// whole conversation on every tick, so a forgotten id would render again.
type Set struct {
	mu    sync.Mutex
	ids   map[backend.ID]*list.Element
	order *list.List // backend.ID, least recently claimed at the front
	limit int
}

// Option configures a Set.
type Option func(*Set)

// WithLimit caps the number of remembered ids. Zero or less means unbounded.
func WithLimit(n int) Option {
	return func(s *Set) { s.limit = n }
}

// New creates an empty Set.
func New(opts ...Option) *Set {
	s := &Set{
		ids:   make(map[backend.ID]*list.Element),
		order: list.New(),
		limit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seen reports whether id is remembered.
func (s *Set) Seen(id backend.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Claim remembers id and reports whether it was new. A caller that gets
// false must not render the message again. Check and insert are atomic, so
// two pollers racing on the same id see exactly one true.
func (s *Set) Claim(id backend.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.ids[id]; ok {
		s.order.MoveToBack(el)
		return false
	}
	s.insertLocked(id)
	return true
}

// Mark remembers id whether or not it was known. Used for messages the
// widget rendered itself, such as the bot reply to a send.
func (s *Set) Mark(id backend.ID) {
	s.Claim(id)
}

// Len returns the number of remembered ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Reset forgets every id. Called when the visible history is cleared.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ids)
	s.order.Init()
}

func (s *Set) insertLocked(id backend.ID) {
	if s.limit > 0 && len(s.ids) >= s.limit {
		if front := s.order.Front(); front != nil {
			s.removeLocked(front)
		}
	}
	s.ids[id] = s.order.PushBack(id)
}

func (s *Set) removeLocked(el *list.Element) {
	delete(s.ids, s.order.Remove(el).(backend.ID))
}

package gateway

import (
	"sync"

	"opsportal/internal/domain"
)

// Selection identifies the entity a surface is showing.
type Selection struct {
	Kind domain.EntityKind
	ID   string
}

// Surface tracks the one entity a caller has open. The zero value is closed
// and ready to use.
type Surface struct {
	mu      sync.Mutex
	current *Selection
	onClose func(Selection)
}

// NewSurface returns a surface that calls onClose whenever it closes.
func NewSurface(onClose func(Selection)) *Surface {
	return &Surface{onClose: onClose}
}

func (s *Surface) Open(kind domain.EntityKind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &Selection{Kind: kind, ID: id}
}

// Close closes the surface if it still shows entityID. Pass "" to close
// whatever is open.
func (s *Surface) Close(entityID string) bool {
	s.mu.Lock()
	cur := s.current
	if cur == nil || (entityID != "" && cur.ID != entityID) {
		s.mu.Unlock()
		return false
	}
	s.current = nil
	hook := s.onClose
	s.mu.Unlock()
	if hook != nil {
		hook(*cur)
	}
	return true
}

func (s *Surface) Current() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Selection{}, false
	}
	return *s.current, true
}

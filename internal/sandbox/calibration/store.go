package calibration

import (
	"sync/atomic"

	"github.com/banshee-data/sandtable/internal/monitoring"
)

// Store holds the current calibration quad. Readers get a consistent snapshot
// without locking; writers that supply a degenerate quad are rejected and the
// previous quad stays active.
type Store struct {
	current atomic.Pointer[Quad]
}

// NewStore returns a Store seeded with initial, or DefaultQuad if initial is
// invalid.
func NewStore(initial Quad) *Store {
	s := &Store{}
	if err := initial.Validate(); err != nil {
		monitoring.Logf("[Calibration] initial quad rejected (%v); using full frame", err)
		initial = DefaultQuad()
	}
	s.current.Store(&initial)
	return s
}

// Quad returns the active quad.
func (s *Store) Quad() Quad {
	return *s.current.Load()
}

// Set replaces the active quad if q is valid.
func (s *Store) Set(q Quad) error {
	if err := q.Validate(); err != nil {
		monitoring.Logf("[Calibration] rejected quad update: %v", err)
		return err
	}
	s.current.Store(&q)
	return nil
}

// Reset restores the full-frame quad.
func (s *Store) Reset() {
	q := DefaultQuad()
	s.current.Store(&q)
}

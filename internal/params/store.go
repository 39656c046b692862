package params

import (
	"sync"

	"github.com/pkg/errors"
)

// Listener is called after a parameter change with the new snapshot.
type Listener func(p Parameters)

// Store is the process-wide parameter state. A control surface writes
// individual fields; the pipeline reads one Snapshot per frame, so a
// frame never observes a half-applied change.
type Store struct {
	mu        sync.RWMutex
	current   Parameters
	listeners []Listener
}

// NewStore creates a store initialised with p.
func NewStore(p Parameters) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "initial parameters")
	}
	return &Store{current: p}, nil
}

// OnChange registers a listener called after every successful change.
// Listeners run on the writer's goroutine, outside the store lock.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns a copy of the current parameters.
func (s *Store) Snapshot() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetMinBlobArea sets the minimum blob area.
func (s *Store) SetMinBlobArea(v int) error {
	return s.update(func(p *Parameters) { p.MinBlobArea = v })
}

// SetCloseKernelSize sets the closing kernel size.
func (s *Store) SetCloseKernelSize(v int) error {
	return s.update(func(p *Parameters) { p.CloseKernelSize = v })
}

// SetCloseIterations sets the number of closing iterations.
func (s *Store) SetCloseIterations(v int) error {
	return s.update(func(p *Parameters) { p.CloseIterations = v })
}

// SetWeight sets the weight of one component.
func (s *Store) SetWeight(c Component, v float64) error {
	if c < 0 || c >= NumComponents {
		return errors.Wrapf(ErrInvalid, "component %d", int(c))
	}
	return s.update(func(p *Parameters) { p.Weights[c] = v })
}

// SetSimilarityCap sets the similarity cap.
func (s *Store) SetSimilarityCap(v float64) error {
	return s.update(func(p *Parameters) { p.SimilarityCap = v })
}

// update applies fn to a copy and commits it only if it validates.
// Unchanged values do not notify listeners.
func (s *Store) update(fn func(p *Parameters)) error {
	s.mu.Lock()
	next := s.current
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if next == s.current {
		s.mu.Unlock()
		return nil
	}
	s.current = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}

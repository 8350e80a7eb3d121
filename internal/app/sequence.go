package app

import (
	"sync"

	"github.com/pollwire/pollwire/internal/domain"
)

// Sequencer serializes the commit-to-broadcast window per poll. The
// store orders commits on its own, but without a slot spanning the
// matching broadcast an observer could receive a newer tally first
// and be left holding the older one. Distinct polls never wait on
// each other; a poll's slot is dropped once idle.
type Sequencer struct {
	mu    sync.Mutex
	slots map[domain.PollID]*slot
}

type slot struct {
	mu   sync.Mutex
	refs int
}

func NewSequencer() *Sequencer {
	return &Sequencer{slots: make(map[domain.PollID]*slot)}
}

// Do runs fn while holding pollID's slot.
func (s *Sequencer) Do(pollID domain.PollID, fn func()) {
	s.mu.Lock()
	sl, ok := s.slots[pollID]
	if !ok {
		sl = &slot{}
		s.slots[pollID] = sl
	}
	sl.refs++
	s.mu.Unlock()

	sl.mu.Lock()
	fn()
	sl.mu.Unlock()

	s.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, pollID)
	}
	s.mu.Unlock()
}

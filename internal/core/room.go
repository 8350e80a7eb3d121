package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pollwire/pollwire/internal/domain"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned connections.
type roomImpl struct {
	pollID domain.PollID
	mu     sync.RWMutex
	bySID  map[SessionID]Conn
}

func NewRoom(pollID domain.PollID) Room {
	return &roomImpl{
		pollID: pollID,
		bySID:  make(map[SessionID]Conn),
	}
}

func (r *roomImpl) PollID() domain.PollID { return r.pollID }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// Add is idempotent: re-adding the same session replaces its connection
// and never produces duplicate delivery.
func (r *roomImpl) Add(sid SessionID, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = c
	log.Debug().Str("module", "core.room").Str("poll", string(r.pollID)).Str("sid", string(sid)).Msg("member added")
}

func (r *roomImpl) Remove(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySID, sid)
	log.Debug().Str("module", "core.room").Str("poll", string(r.pollID)).Str("sid", string(sid)).Msg("member removed")
}

// Broadcast delivers data to every member, the originator included.
// A failed send is dropped; delivery to the rest continues.
func (r *roomImpl) Broadcast(data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, c := range r.bySID {
		if err := c.TrySend(data); err != nil {
			log.Debug().Str("module", "core.room").Str("poll", string(r.pollID)).Str("sid", string(sid)).Err(err).Msg("dropped frame")
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	return res
}

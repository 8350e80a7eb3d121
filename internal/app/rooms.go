package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pollwire/pollwire/internal/core"
	"github.com/pollwire/pollwire/internal/domain"
)

// Router maps each poll to the set of connections currently observing
// it. Membership lives purely in process memory; a restart drops all
// rooms and clients re-join on reconnect.
type Router struct {
	mu     sync.RWMutex
	rooms  map[domain.PollID]core.Room
	byConn map[core.SessionID]map[domain.PollID]struct{}
}

func NewRouter() *Router {
	return &Router{
		rooms:  make(map[domain.PollID]core.Room),
		byConn: make(map[core.SessionID]map[domain.PollID]struct{}),
	}
}

// Join adds the connection to the poll's room, creating the room on
// first join. Joining the same poll twice is idempotent.
func (r *Router) Join(pollID domain.PollID, sid core.SessionID, c core.Conn) {
	r.mu.Lock()
	room, ok := r.rooms[pollID]
	if !ok {
		room = core.NewRoom(pollID)
		r.rooms[pollID] = room
	}
	polls, ok := r.byConn[sid]
	if !ok {
		polls = make(map[domain.PollID]struct{})
		r.byConn[sid] = polls
	}
	polls[pollID] = struct{}{}
	r.mu.Unlock()

	room.Add(sid, c)
	log.Info().Str("module", "app.rooms").Str("poll", string(pollID)).Str("sid", string(sid)).Msg("joined room")
}

// Leave removes the connection from every room it was in, pruning
// rooms that become empty.
func (r *Router) Leave(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pollID := range r.byConn[sid] {
		room, ok := r.rooms[pollID]
		if !ok {
			continue
		}
		room.Remove(sid)
		if room.MemberCount() == 0 {
			delete(r.rooms, pollID)
		}
	}
	delete(r.byConn, sid)
	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Msg("left all rooms")
}

// Broadcast delivers data to every connection joined to pollID, the
// originator included. Per-connection failures are swallowed.
func (r *Router) Broadcast(pollID domain.PollID, data core.Frame) core.PublishResult {
	r.mu.RLock()
	room, ok := r.rooms[pollID]
	r.mu.RUnlock()
	if !ok {
		return core.PublishResult{}
	}
	res := room.Broadcast(data)
	log.Debug().Str("module", "app.rooms").Str("poll", string(pollID)).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast")
	return res
}

// RoomCount reports the number of live rooms, for diagnostics.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

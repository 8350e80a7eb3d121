package core

import "github.com/pollwire/pollwire/internal/domain"

// Frame is a marshaled wire payload.
type Frame []byte

type SessionID string

// Conn abstracts an observer's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats for a broadcast.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Room is the core-facing API of a poll room. It owns the membership
// set but never touches transport resources.
type Room interface {
	PollID() domain.PollID
	MemberCount() int

	Add(sid SessionID, c Conn)
	Remove(sid SessionID)
	Broadcast(data Frame) PublishResult
}

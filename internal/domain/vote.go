package domain

import "time"

// VoterID is an opaque client-generated token, durable per browser/device.
// It is the primary fairness key; the server never authenticates it.
type VoterID string

// Vote is append-only: never updated or deleted once persisted.
type Vote struct {
	ID        int64     `json:"id"`
	PollID    PollID    `json:"poll_id"`
	OptionID  OptionID  `json:"option_id"`
	VoterID   VoterID   `json:"-"`
	IPAddress string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

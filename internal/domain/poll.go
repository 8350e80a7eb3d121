// Package domain contains entity without logic, just meta-data
package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	// PollIDAlphabet is the restricted alphabet poll ids are drawn from.
	// Short, lowercase, url-safe.
	PollIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	PollIDLen      = 10

	MaxQuestionLen = 280
	MinOptions     = 2
)

type (
	PollID   string
	OptionID int64
)

type Poll struct {
	ID        PollID    `json:"id"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// Option is immutable after poll creation. Votes is a derived read-model
// field, never authoritative state.
type Option struct {
	ID     OptionID `json:"id"`
	PollID PollID   `json:"poll_id"`
	Text   string   `json:"text"`
	Votes  int      `json:"votes"`
}

// Tally maps every option of a poll to its current vote count.
// Options with zero votes are present, never absent.
type Tally map[OptionID]int

// NewPollID mints a short opaque poll identifier.
func NewPollID() (PollID, error) {
	b := make([]byte, PollIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate poll id: %w", err)
	}
	for i := range b {
		b[i] = PollIDAlphabet[int(b[i])%len(PollIDAlphabet)]
	}
	return PollID(b), nil
}

package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pollwire/pollwire/internal/domain"
)

// VoteReads is the slice of store reads the admission decision needs.
// The ledger passes in transactional queries so these reads share the
// insert's isolation; the checker itself holds no lock.
type VoteReads interface {
	HasVote(ctx context.Context, pollID domain.PollID, voterID domain.VoterID) (bool, error)
	VotesFromSince(ctx context.Context, addr string, since time.Time) (int, error)
}

// Checker decides whether a (poll, voter, address) tuple may cast a
// new vote. Pure decision over current store state and wall-clock
// time; no side effects.
type Checker struct {
	enabled bool
	limit   int
	window  time.Duration
}

// NewChecker builds a fairness checker. When enabled is false every
// admission succeeds (trusted/test deployments).
func NewChecker(enabled bool, limit int, window time.Duration) *Checker {
	return &Checker{enabled: enabled, limit: limit, window: window}
}

// Admit returns nil to allow, or one of the domain denial errors.
// Identity uniqueness is checked before the address window; neither
// rule supersedes the other.
func (c *Checker) Admit(ctx context.Context, reads VoteReads, pollID domain.PollID, voterID domain.VoterID, addr string, now time.Time) error {
	if !c.enabled {
		return nil
	}
	if voterID == "" {
		return domain.ErrMissingIdentity
	}

	voted, err := reads.HasVote(ctx, pollID, voterID)
	if err != nil {
		return err
	}
	if voted {
		log.Debug().Str("module", "app.fairness").Str("poll", string(pollID)).Msg("duplicate identity denied")
		return domain.ErrDuplicateIdentity
	}

	recent, err := reads.VotesFromSince(ctx, addr, now.Add(-c.window))
	if err != nil {
		return err
	}
	if recent >= c.limit {
		log.Info().Str("module", "app.fairness").Str("addr", addr).Int("recent", recent).Msg("rate limited")
		return domain.ErrRateLimited
	}
	return nil
}

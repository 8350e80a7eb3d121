// Package app holds the vote ledger, the fairness checker and the
// room router that together form the live voting core.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pollwire/pollwire/internal/domain"
	"github.com/pollwire/pollwire/internal/storage"
)

// Ledger appends admissible votes and recomputes per-option counts.
// The ownership check, the admission reads, the insert and the
// recompute all run inside one store transaction: that transaction is
// the sole concurrency control between racing voters, so there is no
// in-process lock across the check-then-insert window.
type Ledger struct {
	store   *storage.Store
	checker *Checker
}

func NewLedger(store *storage.Store, checker *Checker) *Ledger {
	return &Ledger{store: store, checker: checker}
}

// CastVote records one vote and returns the fresh tally for the poll.
// On any denial or persistence failure nothing is committed.
func (l *Ledger) CastVote(ctx context.Context, pollID domain.PollID, optionID domain.OptionID, voterID domain.VoterID, addr string) (domain.Tally, error) {
	var tally domain.Tally
	err := l.store.WithTx(ctx, func(q *storage.Queries) error {
		ok, err := q.OptionBelongs(ctx, pollID, optionID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidOption
		}

		now := time.Now()
		if err := l.checker.Admit(ctx, q, pollID, voterID, addr, now); err != nil {
			return err
		}

		if err := q.InsertVote(ctx, domain.Vote{
			PollID:    pollID,
			OptionID:  optionID,
			VoterID:   voterID,
			IPAddress: addr,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		tally, err = q.Tally(ctx, pollID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.ledger").Str("poll", string(pollID)).Int64("option", int64(optionID)).Msg("vote recorded")
	return tally, nil
}

// CurrentTally recomputes the tally outside any vote, e.g. for a fresh
// room join, so joiners converge without waiting for the next vote.
func (l *Ledger) CurrentTally(ctx context.Context, pollID domain.PollID) (domain.Tally, error) {
	return l.store.Queries().Tally(ctx, pollID)
}

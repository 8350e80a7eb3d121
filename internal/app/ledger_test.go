package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pollwire/pollwire/internal/domain"
	"github.com/pollwire/pollwire/internal/storage"
)

func newTestLedger(t *testing.T, fairness bool) (*Ledger, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	checker := NewChecker(fairness, 10, time.Minute)
	return NewLedger(store, checker), store
}

func makePoll(t *testing.T, store *storage.Store) (domain.PollID, []domain.Option) {
	t.Helper()
	id, err := store.CreatePoll(context.Background(), "Best color?", []string{"Red", "Blue"})
	if err != nil {
		t.Fatalf("failed to create poll: %v", err)
	}
	_, opts, err := store.GetPoll(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to read poll: %v", err)
	}
	return id, opts
}

func TestCastVoteInvalidOption(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, _ := makePoll(t, store)

	_, err := ledger.CastVote(context.Background(), pollID, 9999, "v1", "10.0.0.1")
	if !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}

	tally, err := ledger.CurrentTally(context.Background(), pollID)
	if err != nil {
		t.Fatalf("CurrentTally failed: %v", err)
	}
	for id, n := range tally {
		if n != 0 {
			t.Errorf("denied vote mutated state: option %d has %d votes", id, n)
		}
	}
}

func TestCastVoteCrossPollOption(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, _ := makePoll(t, store)
	otherID, otherOpts := makePoll(t, store)
	_ = otherID

	_, err := ledger.CastVote(context.Background(), pollID, otherOpts[0].ID, "v1", "10.0.0.1")
	if !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption for cross-poll option, got %v", err)
	}
}

func TestCastVoteReturnsFullTally(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, opts := makePoll(t, store)

	tally, err := ledger.CastVote(context.Background(), pollID, opts[0].ID, "v1", "10.0.0.1")
	if err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}
	if tally[opts[0].ID] != 1 {
		t.Errorf("expected 1 vote for %q, got %d", opts[0].Text, tally[opts[0].ID])
	}
	if n, ok := tally[opts[1].ID]; !ok || n != 0 {
		t.Errorf("zero-vote option must be present with 0, got %d (present=%v)", n, ok)
	}
}

func TestCastVoteDuplicateIdentity(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, opts := makePoll(t, store)
	ctx := context.Background()

	if _, err := ledger.CastVote(ctx, pollID, opts[0].ID, "v1", "10.0.0.1"); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	_, err := ledger.CastVote(ctx, pollID, opts[1].ID, "v1", "10.0.0.2")
	if !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Errorf("expected ErrDuplicateIdentity, got %v", err)
	}

	tally, err := ledger.CurrentTally(ctx, pollID)
	if err != nil {
		t.Fatalf("CurrentTally failed: %v", err)
	}
	if tally[opts[0].ID] != 1 || tally[opts[1].ID] != 0 {
		t.Errorf("denied vote mutated tally: %v", tally)
	}
}

func TestCastVoteMissingIdentity(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, opts := makePoll(t, store)

	_, err := ledger.CastVote(context.Background(), pollID, opts[0].ID, "", "10.0.0.1")
	if !errors.Is(err, domain.ErrMissingIdentity) {
		t.Errorf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestCastVoteFairnessDisabled(t *testing.T) {
	ledger, store := newTestLedger(t, false)
	pollID, opts := makePoll(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ledger.CastVote(ctx, pollID, opts[0].ID, "v1", "10.0.0.1"); err != nil {
			t.Fatalf("vote %d failed with fairness disabled: %v", i, err)
		}
	}
	tally, err := ledger.CurrentTally(ctx, pollID)
	if err != nil {
		t.Fatalf("CurrentTally failed: %v", err)
	}
	if tally[opts[0].ID] != 3 {
		t.Errorf("expected 3 votes, got %d", tally[opts[0].ID])
	}
}

// Ten votes from one address inside the window succeed; the eleventh
// is denied; once the window has elapsed voting resumes.
func TestRateLimitBoundary(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, opts := makePoll(t, store)
	ctx := context.Background()

	const addr = "10.0.0.42"
	for i := 0; i < 10; i++ {
		voter := domain.VoterID(fmt.Sprintf("voter-%d", i))
		if _, err := ledger.CastVote(ctx, pollID, opts[0].ID, voter, addr); err != nil {
			t.Fatalf("vote %d should be admitted, got %v", i, err)
		}
	}
	_, err := ledger.CastVote(ctx, pollID, opts[0].ID, "voter-10", addr)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on 11th vote, got %v", err)
	}

	// A second address whose ten votes are already older than the
	// window: voting there proceeds.
	const agedAddr = "10.0.0.43"
	backdated := time.Now().Add(-2 * time.Minute)
	for i := 0; i < 10; i++ {
		err := store.Queries().InsertVote(ctx, domain.Vote{
			PollID:    pollID,
			OptionID:  opts[1].ID,
			VoterID:   domain.VoterID(fmt.Sprintf("aged-%d", i)),
			IPAddress: agedAddr,
			CreatedAt: backdated,
		})
		if err != nil {
			t.Fatalf("failed to insert backdated vote: %v", err)
		}
	}
	if _, err := ledger.CastVote(ctx, pollID, opts[0].ID, "voter-10", agedAddr); err != nil {
		t.Errorf("vote after the window elapsed should succeed, got %v", err)
	}
}

// N concurrent voters with distinct identities all land; the final
// count equals N: no lost updates between racing transactions.
func TestConcurrentDistinctVoters(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, opts := makePoll(t, store)

	const numVoters = 25
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			voter := domain.VoterID(fmt.Sprintf("voter-%d", n))
			addr := fmt.Sprintf("10.0.%d.1", n)
			if _, err := ledger.CastVote(context.Background(), pollID, opts[0].ID, voter, addr); err != nil {
				t.Errorf("vote by %s failed: %v", voter, err)
				return
			}
			successCount.Add(1)
		}(i)
	}
	wg.Wait()

	if successCount.Load() != numVoters {
		t.Errorf("expected %d successes, got %d", numVoters, successCount.Load())
	}
	tally, err := ledger.CurrentTally(context.Background(), pollID)
	if err != nil {
		t.Fatalf("CurrentTally failed: %v", err)
	}
	if tally[opts[0].ID] != numVoters {
		t.Errorf("expected final count %d, got %d", numVoters, tally[opts[0].ID])
	}
}

// N concurrent votes under one identity commit exactly once.
func TestConcurrentSameVoter(t *testing.T) {
	ledger, store := newTestLedger(t, true)
	pollID, opts := makePoll(t, store)

	const attempts = 10
	var successCount, duplicateCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.1.%d.1", n)
			_, err := ledger.CastVote(context.Background(), pollID, opts[0].ID, "the-voter", addr)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrDuplicateIdentity):
				duplicateCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
	if duplicateCount.Load() != attempts-1 {
		t.Errorf("expected %d duplicate denials, got %d", attempts-1, duplicateCount.Load())
	}
	tally, err := ledger.CurrentTally(context.Background(), pollID)
	if err != nil {
		t.Fatalf("CurrentTally failed: %v", err)
	}
	if tally[opts[0].ID] != 1 {
		t.Errorf("expected final count 1, got %d", tally[opts[0].ID])
	}
}

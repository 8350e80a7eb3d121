// Package storage is the transactional store adapter over sqlite.
// Vote admission correctness depends on its transaction isolation:
// the admission checks and the insert must see the same state.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/pollwire/pollwire/internal/domain"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite has a single writer; one pooled connection keeps admission
	// transactions serialized instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("module", "storage").Str("path", path).Msg("database ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles row-level operations so the same code runs inside or
// outside a transaction.
type Queries struct {
	q Querier
}

// Queries returns auto-commit queries against the store.
func (s *Store) Queries() *Queries { return &Queries{q: s.db} }

// WithTx runs fn inside a single transaction, rolling back in full on
// any error.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreatePoll inserts a poll and its options atomically and returns the
// new poll id. At least two options are required.
func (s *Store) CreatePoll(ctx context.Context, question string, options []string) (domain.PollID, error) {
	if len(options) < domain.MinOptions {
		return "", fmt.Errorf("poll needs at least %d options", domain.MinOptions)
	}
	id, err := domain.NewPollID()
	if err != nil {
		return "", err
	}
	err = s.WithTx(ctx, func(q *Queries) error {
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO polls (id, question, created_at) VALUES (?, ?, ?)`,
			string(id), question, fmtTime(time.Now()),
		); err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}
		for _, text := range options {
			if _, err := q.q.ExecContext(ctx,
				`INSERT INTO options (poll_id, text) VALUES (?, ?)`,
				string(id), text,
			); err != nil {
				return fmt.Errorf("failed to insert option: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	log.Info().Str("module", "storage").Str("poll", string(id)).Int("options", len(options)).Msg("poll created")
	return id, nil
}

// GetPoll returns a poll and its options with current vote counts.
// Returns domain.ErrPollNotFound for an unknown id.
func (s *Store) GetPoll(ctx context.Context, id domain.PollID) (*domain.Poll, []domain.Option, error) {
	q := s.Queries()

	var poll domain.Poll
	var createdAt string
	err := q.q.QueryRowContext(ctx,
		`SELECT id, question, created_at FROM polls WHERE id = ?`, string(id),
	).Scan(&poll.ID, &poll.Question, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query poll: %w", err)
	}
	if poll.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, nil, fmt.Errorf("bad poll timestamp: %w", err)
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT o.id, o.poll_id, o.text, COUNT(v.id)
		 FROM options o LEFT JOIN votes v ON v.option_id = o.id
		 WHERE o.poll_id = ?
		 GROUP BY o.id
		 ORDER BY o.id`, string(id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Votes); err != nil {
			return nil, nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read options: %w", err)
	}
	return &poll, options, nil
}

// PollExists reports whether a poll row exists for id.
func (q *Queries) PollExists(ctx context.Context, id domain.PollID) (bool, error) {
	var one int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM polls WHERE id = ?`, string(id),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check poll: %w", err)
	}
	return true, nil
}

// OptionBelongs reports whether optionID is one of pollID's options.
func (q *Queries) OptionBelongs(ctx context.Context, pollID domain.PollID, optionID domain.OptionID) (bool, error) {
	var one int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM options WHERE id = ? AND poll_id = ?`,
		int64(optionID), string(pollID),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check option ownership: %w", err)
	}
	return true, nil
}

// HasVote reports whether a persisted vote exists for (poll, voter).
func (q *Queries) HasVote(ctx context.Context, pollID domain.PollID, voterID domain.VoterID) (bool, error) {
	var one int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM votes WHERE poll_id = ? AND voter_id = ? LIMIT 1`,
		string(pollID), string(voterID),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check voter identity: %w", err)
	}
	return true, nil
}

// VotesFromSince counts persisted votes from addr with a timestamp
// after since, across all polls.
func (q *Queries) VotesFromSince(ctx context.Context, addr string, since time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE ip_address = ? AND created_at > ?`,
		addr, fmtTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes by address: %w", err)
	}
	return n, nil
}

// InsertVote appends a vote row.
func (q *Queries) InsertVote(ctx context.Context, v domain.Vote) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO votes (poll_id, option_id, voter_id, ip_address, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(v.PollID), int64(v.OptionID), string(v.VoterID), v.IPAddress, fmtTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// Tally recomputes per-option counts for a poll from persisted votes.
// Every option of the poll is present; zero-vote options report zero.
func (q *Queries) Tally(ctx context.Context, pollID domain.PollID) (domain.Tally, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT o.id, COUNT(v.id)
		 FROM options o LEFT JOIN votes v ON v.option_id = o.id
		 WHERE o.poll_id = ?
		 GROUP BY o.id`, string(pollID))
	if err != nil {
		return nil, fmt.Errorf("failed to tally votes: %w", err)
	}
	defer rows.Close()

	tally := make(domain.Tally)
	for rows.Next() {
		var id domain.OptionID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}
		tally[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tally: %w", err)
	}
	return tally, nil
}

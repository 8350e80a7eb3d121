package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/pollwire/pollwire/internal/core"
	"github.com/pollwire/pollwire/internal/domain"
)

type resultsEvent struct {
	Type    string        `json:"type"`
	PollID  domain.PollID `json:"pollId"`
	Results domain.Tally  `json:"results"`
}

// handleJoin registers the connection with the room router. Joining
// never fails and has no persistence side effect; an unknown poll id
// simply yields an empty snapshot.
func (ctl *Controller) handleJoin(ctx context.Context, sid core.SessionID, c *WsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		PollID string `json:"pollId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.PollID == "" {
		log.Warn().Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "Malformed message.")
		return
	}
	pollID := domain.PollID(p.PollID)

	ctl.Rooms.Join(pollID, sid, c)

	// Fresh joiners get a recomputed snapshot so their view converges
	// without waiting for the next vote.
	tally, err := ctl.Ledger.CurrentTally(ctx, pollID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("poll", p.PollID).Msg("join tally")
		return
	}
	ctl.sendJSON(c, resultsEvent{Type: "update_results", PollID: pollID, Results: tally})
}

func (ctl *Controller) handleVote(ctx context.Context, sid core.SessionID, c *WsConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		PollID   string `json:"pollId"`
		OptionID int64  `json:"optionId"`
		VoterID  string `json:"voterId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.PollID == "" {
		log.Warn().Str("module", "signal").Msg("bad vote payload")
		ctl.sendError(c, "Malformed message.")
		return
	}
	pollID := domain.PollID(p.PollID)

	// The slot spans commit and broadcast so update_results frames
	// for one poll leave in tally order.
	ctl.seq.Do(pollID, func() {
		tally, err := ctl.Ledger.CastVote(ctx, pollID, domain.OptionID(p.OptionID), domain.VoterID(p.VoterID), c.addr)
		if err != nil {
			if domain.IsDenial(err) {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("poll", p.PollID).Msg("vote denied")
			} else {
				log.Error().Err(err).Str("module", "signal").Str("poll", p.PollID).Msg("vote failed")
			}
			ctl.sendError(c, voteErrorMessage(err))
			return
		}

		frame, err := json.Marshal(resultsEvent{Type: "update_results", PollID: pollID, Results: tally})
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("marshal update_results")
			return
		}
		ctl.Rooms.Broadcast(pollID, frame)
	})
}

func (ctl *Controller) handlePing(c *WsConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

func voteErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		return "Poll not found."
	case errors.Is(err, domain.ErrInvalidOption):
		return "That option does not belong to this poll."
	case errors.Is(err, domain.ErrMissingIdentity):
		return "Missing voter identity."
	case errors.Is(err, domain.ErrDuplicateIdentity):
		return "You have already voted in this poll."
	case errors.Is(err, domain.ErrRateLimited):
		return "Too many votes from your address. Try again later."
	default:
		return "Failed to record vote."
	}
}

package domain

import "errors"

// Vote denial taxonomy. Denials are expected outcomes, reported to the
// originating connection only and never broadcast to a room.
var (
	ErrPollNotFound      = errors.New("poll not found")
	ErrInvalidOption     = errors.New("option does not belong to poll")
	ErrMissingIdentity   = errors.New("missing voter identity")
	ErrDuplicateIdentity = errors.New("voter already voted in this poll")
	ErrRateLimited       = errors.New("too many votes from this address")
)

// IsDenial reports whether err is a normal vote denial rather than a
// persistence failure.
func IsDenial(err error) bool {
	return errors.Is(err, ErrPollNotFound) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrMissingIdentity) ||
		errors.Is(err, ErrDuplicateIdentity) ||
		errors.Is(err, ErrRateLimited)
}

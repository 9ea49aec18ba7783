package arena

import "errors"

var (
	// ErrInsufficientFunds means a participant's points do not cover the stake.
	ErrInsufficientFunds = errors.New("insufficient points for stake")

	// ErrIllegalMove means the move violates the variant's rules.
	ErrIllegalMove = errors.New("illegal move")

	// ErrNotYourTurn means the mover does not hold the turn.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrStaleSession means the session status changed underneath the caller;
	// the attempted operation was not applied.
	ErrStaleSession = errors.New("session state is stale")

	// ErrRemoteDeletion means the session record disappeared from the store
	// while being played.
	ErrRemoteDeletion = errors.New("session was deleted remotely")

	// ErrNotParticipant means the user plays no role in the session.
	ErrNotParticipant = errors.New("not a participant of this session")

	// ErrSelfChallenge means a user tried to challenge themselves.
	ErrSelfChallenge = errors.New("cannot challenge yourself")
)

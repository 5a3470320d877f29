package matchmaking

import "errors"

var (
	ErrAlreadyQueued  = errors.New("player is already queued")
	ErrNotQueued      = errors.New("player is not queued")
	ErrAlreadyInMatch = errors.New("player already belongs to an active match")
	ErrNoShowCooldown = errors.New("player is cooling down after missing a ready-check")
	ErrMatchNotFound  = errors.New("match not found")
	ErrWrongMatch     = errors.New("player is not part of this match")
	ErrMatchExpired   = errors.New("match ready-check expired")
	ErrUnknownMode    = errors.New("unknown game mode")
	ErrInternal       = errors.New("internal matchmaking fault")
)

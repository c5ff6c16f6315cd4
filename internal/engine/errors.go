package engine

import "errors"

// Sentinel errors surfaced at the boundaries named in the error-handling
// taxonomy: weight loading, internal invariant violations the search must
// recover from without crashing, and the byoyomi time-forfeit outcome.
var (
	ErrWeightsLoad          = errors.New("engine: could not load a usable weights file")
	ErrKingNotFound         = errors.New("engine: position has no king for the side to move")
	ErrEmptyAccumulatorStack = errors.New("engine: accumulator stack underflow")
	ErrTimeForfeit          = errors.New("engine: byoyomi periods exhausted")
)

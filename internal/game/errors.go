package game

import (
	"errors"
	"fmt"
)

var (
	ErrNoResult      = errors.New("game: context ended without a result")
	ErrInvalidResult = errors.New("game: invalid result")
)

// GameError is a failure reported by the game module itself.
type GameError struct {
	Index   int
	Message string
}

func (e *GameError) Error() string {
	return fmt.Sprintf("game %d: %s", e.Index, e.Message)
}

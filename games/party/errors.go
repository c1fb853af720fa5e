/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package party

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientPlayers is returned when a roster is below a game's minimum.
	ErrInsufficientPlayers = errors.New("insufficient players")

	// ErrInvalidRoster is returned for rosters with blank or repeated ids.
	ErrInvalidRoster = errors.New("invalid roster")

	// ErrIllegalTransition is returned when an operation's phase or actor
	// precondition does not hold. The state passed in is always left as-is.
	ErrIllegalTransition = errors.New("illegal transition")
)

// Illegal builds an error wrapping ErrIllegalTransition.
func Illegal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalTransition, fmt.Sprintf(format, args...))
}

// IsIllegal reports whether err is a rejected precondition.
func IsIllegal(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

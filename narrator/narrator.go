/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package narrator turns game transitions into short flavor text. Narration
// is decoration only: callers go through Safe, which never fails and never
// blocks a transition for longer than its timeout.
package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind is the transition being narrated.
type Kind string

const (
	NightStart Kind = "night-start"
	DayStart   Kind = "day-start"
	VoteResult Kind = "vote-result"
	GameEnd    Kind = "game-end"
)

// Event describes one transition in display terms. Names, not ids.
type Event struct {
	Kind           Kind     `json:"kind"`
	Game           string   `json:"game"`
	Round          int      `json:"round,omitempty"`
	Alive          []string `json:"alive,omitempty"`
	Eliminated     string   `json:"eliminated,omitempty"`
	EliminatedRole string   `json:"eliminated_role,omitempty"`
	Winner         string   `json:"winner,omitempty"`
}

// Narrator produces flavor text for an event.
type Narrator interface {
	Narrate(ctx context.Context, e Event) (string, error)
}

// Static narrates every event with its Fallback text.
type Static struct{}

func (Static) Narrate(_ context.Context, e Event) (string, error) {
	return Fallback(e), nil
}

// Fallback is the fixed text for an event, used whenever a narrator is
// unavailable.
func Fallback(e Event) string {
	switch e.Kind {
	case NightStart:
		if e.Round > 0 {
			return fmt.Sprintf("Night %d falls. Everyone closes their eyes.", e.Round)
		}
		return "Night falls. Everyone closes their eyes."
	case DayStart:
		if e.Game == "mafia" {
			if e.Eliminated != "" {
				return fmt.Sprintf("The sun rises. %s did not survive the night.", e.Eliminated)
			}
			return "The sun rises. Nobody was lost overnight."
		}
		return "The hints begin. Listen closely."
	case VoteResult:
		if e.Eliminated != "" {
			return fmt.Sprintf("The vote is in: %s is out.", e.Eliminated)
		}
		return "The vote is split. Nobody is out."
	case GameEnd:
		if e.Winner != "" {
			return fmt.Sprintf("The game is over. The %s win.", e.Winner)
		}
		return "The game is over."
	default:
		return ""
	}
}

// Prompt renders the instruction sent to a text model for e.
func Prompt(e Event) string {
	var b strings.Builder

	game := "a social deduction party game"
	switch e.Game {
	case "liar":
		game = "a word-guessing party game where one player is a hidden impostor"
	case "mafia":
		game = "a party game where hidden eliminators remove players each night"
	}

	fmt.Fprintf(&b, "You narrate %s. Write one or two dramatic sentences, under 40 words, for this moment: %s.", game, e.Kind)
	if e.Round > 0 {
		fmt.Fprintf(&b, " Round %d.", e.Round)
	}
	if len(e.Alive) > 0 {
		fmt.Fprintf(&b, " Still playing: %s.", strings.Join(e.Alive, ", "))
	}
	if e.Eliminated != "" {
		fmt.Fprintf(&b, " Just eliminated: %s.", e.Eliminated)
		if e.EliminatedRole != "" {
			fmt.Fprintf(&b, " They were the %s.", e.EliminatedRole)
		}
	}
	if e.Winner != "" {
		fmt.Fprintf(&b, " Winners: the %s.", e.Winner)
	}
	b.WriteString(" Do not invent events or reveal hidden roles.")

	return b.String()
}

// Safe wraps a Narrator so that a slow or failing narrator degrades to the
// Fallback text.
type Safe struct {
	Narrator Narrator
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Narrate returns flavor text for e. It always returns something.
func (s Safe) Narrate(ctx context.Context, e Event) string {
	if s.Narrator == nil {
		return Fallback(e)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	text, err := s.Narrator.Narrate(ctx, e)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if s.Logger != nil {
			s.Logger.Debug("narration fell back",
				zap.String("kind", string(e.Kind)),
				zap.Error(err),
			)
		}
		return Fallback(e)
	}

	return text
}

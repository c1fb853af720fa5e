/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package party holds what both games share: players, the roster fixed at
// game start, vote tallies, and the random source used to deal secrets.
package party

import (
	"fmt"
	"strings"
)

// MinPlayers is the smallest roster either game can be started with.
const MinPlayers = 3

// Player is one participant. ID is immutable; Ready only matters in the lobby.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready,omitempty"`
}

// Roster is the ordered set of players fixed when a game starts.
type Roster []Player

// Index returns the roster position of id, or -1.
func (r Roster) Index(id string) int {
	for i, p := range r {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r Roster) Contains(id string) bool {
	return r.Index(id) >= 0
}

// Clone returns a copy that shares no backing array with r.
func (r Roster) Clone() Roster {
	if r == nil {
		return nil
	}
	out := make(Roster, len(r))
	copy(out, r)
	return out
}

// IDs returns player ids in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for _, p := range r {
		ids = append(ids, p.ID)
	}
	return ids
}

// Name returns the display name for id, falling back to the id itself.
func (r Roster) Name(id string) string {
	if i := r.Index(id); i >= 0 && r[i].Name != "" {
		return r[i].Name
	}
	return id
}

// Validate checks the roster is usable for a game needing at least min players.
func (r Roster) Validate(min int) error {
	if len(r) < min {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientPlayers, len(r), min)
	}

	seen := make(map[string]bool, len(r))
	for i, p := range r {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: player %d has no id", ErrInvalidRoster, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate player %q", ErrInvalidRoster, p.ID)
		}
		seen[p.ID] = true
	}

	return nil
}

// Seated strips lobby-only state from the players before a game starts.
func (r Roster) Seated() Roster {
	out := r.Clone()
	for i := range out {
		out[i].Ready = false
	}
	return out
}

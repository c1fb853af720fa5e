/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package mafia

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Seednode/partyroom/games/party"
)

// Role is a player's concealed assignment.
type Role int

const (
	// RoleUnknown is what other players see in place of a hidden role.
	RoleUnknown Role = iota
	Eliminator
	Medic
	Investigator
	Bystander
)

var roleNames = [...]string{
	RoleUnknown:  "",
	Eliminator:   "eliminator",
	Medic:        "medic",
	Investigator: "investigator",
	Bystander:    "bystander",
}

var roleDescriptions = [...]string{
	RoleUnknown:  "",
	Eliminator:   "Each night, agree with the other eliminators on one player to remove. Win once you match the rest in number.",
	Medic:        "Each night, protect one player, yourself included. A protected player survives the eliminators.",
	Investigator: "Each night, investigate one other player and learn whether they are an eliminator.",
	Bystander:    "You have no night action. Find the eliminators and vote them out during the day.",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(roleNames) {
		return nil, fmt.Errorf("unknown mafia role %d", int(r))
	}
	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for i, name := range roleNames {
		if name == string(b) {
			*r = Role(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mafia role %q", b)
}

// Description is the rules text shown to the holder of r.
func (r Role) Description() string {
	if r < 0 || int(r) >= len(roleDescriptions) {
		return ""
	}
	return roleDescriptions[r]
}

// acting reports whether r has a night action.
func (r Role) acting() bool {
	switch r {
	case Eliminator, Medic, Investigator:
		return true
	default:
		return false
	}
}

// Phase is a stage of the elimination game. Night and day alternate until an
// end condition fires.
type Phase int

const (
	Night Phase = iota
	DayDiscussion
	DayVote
	Outcome
)

var phaseNames = [...]string{
	Night:         "night",
	DayDiscussion: "day-discussion",
	DayVote:       "day-vote",
	Outcome:       "outcome",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("unknown mafia phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mafia phase %q", b)
}

// Faction identifies a winning side.
type Faction int

const (
	NoFaction Faction = iota
	Eliminators
	Citizens
)

var factionNames = [...]string{
	NoFaction:   "",
	Eliminators: "eliminators",
	Citizens:    "citizens",
}

func (f Faction) String() string {
	if f < 0 || int(f) >= len(factionNames) {
		return fmt.Sprintf("faction(%d)", int(f))
	}
	return factionNames[f]
}

func (f Faction) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(factionNames) {
		return nil, fmt.Errorf("unknown mafia faction %d", int(f))
	}
	return []byte(factionNames[f]), nil
}

func (f *Faction) UnmarshalText(b []byte) error {
	for i, name := range factionNames {
		if name == string(b) {
			*f = Faction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mafia faction %q", b)
}

// Seat is a player with their role and whether they are still in the game.
type Seat struct {
	party.Player
	Role  Role `json:"role,omitempty"`
	Alive bool `json:"alive"`
}

// Investigation is what the investigator learned about one player.
type Investigation struct {
	Round          int    `json:"round"`
	InvestigatorID string `json:"investigator_id"`
	TargetID       string `json:"target_id"`
	IsEliminator   bool   `json:"is_eliminator"`
}

// State is the shared elimination game document.
type State struct {
	Seats []Seat `json:"seats"`
	Phase Phase  `json:"phase"`
	Round int    `json:"round"`

	// NightActions holds one target per acting role for the current night.
	NightActions map[Role]string  `json:"night_actions"`
	Votes        map[string]string `json:"votes"`

	Eliminated     []string        `json:"eliminated"`
	Investigations []Investigation `json:"investigations,omitempty"`

	Winner Faction `json:"winner,omitempty"`
}

func (s State) clone() State {
	next := s
	next.Seats = slices.Clone(s.Seats)
	next.NightActions = maps.Clone(s.NightActions)
	if next.NightActions == nil {
		next.NightActions = make(map[Role]string)
	}
	next.Votes = maps.Clone(s.Votes)
	if next.Votes == nil {
		next.Votes = make(map[string]string)
	}
	next.Eliminated = slices.Clone(s.Eliminated)
	next.Investigations = slices.Clone(s.Investigations)
	return next
}

// Roster returns the seated players in seat order.
func (s State) Roster() party.Roster {
	r := make(party.Roster, 0, len(s.Seats))
	for _, seat := range s.Seats {
		r = append(r, seat.Player)
	}
	return r
}

// Seat returns the seat held by id.
func (s State) Seat(id string) (Seat, bool) {
	for _, seat := range s.Seats {
		if seat.ID == id {
			return seat, true
		}
	}
	return Seat{}, false
}

// IsAlive reports whether id is seated and still in the game.
func (s State) IsAlive(id string) bool {
	seat, ok := s.Seat(id)
	return ok && seat.Alive
}

// Living returns the ids of living players in seat order.
func (s State) Living() []string {
	var ids []string
	for _, seat := range s.Seats {
		if seat.Alive {
			ids = append(ids, seat.ID)
		}
	}
	return ids
}

func (s State) kill(id string) State {
	for i := range s.Seats {
		if s.Seats[i].ID == id && s.Seats[i].Alive {
			s.Seats[i].Alive = false
			s.Eliminated = append(s.Eliminated, id)
		}
	}
	return s
}

// Redact returns the view of s that viewerID may see. A viewer sees their
// own role, eliminators see each other, and the roles of eliminated players
// are public. Night slots and investigations are limited to the viewer's own.
// At the outcome everything is revealed.
func (s State) Redact(viewerID string) State {
	view := s.clone()
	if s.Phase == Outcome {
		return view
	}

	own, seated := s.Seat(viewerID)

	for i, seat := range view.Seats {
		switch {
		case seat.ID == viewerID:
		case !seat.Alive:
		case seated && own.Role == Eliminator && seat.Role == Eliminator:
		default:
			view.Seats[i].Role = RoleUnknown
		}
	}

	view.NightActions = make(map[Role]string)
	if seated && own.Alive && own.Role.acting() {
		if target, ok := s.NightActions[own.Role]; ok {
			view.NightActions[own.Role] = target
		}
	}

	view.Investigations = nil
	for _, inv := range s.Investigations {
		if inv.InvestigatorID == viewerID {
			view.Investigations = append(view.Investigations, inv)
		}
	}

	return view
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package liar

import (
	"fmt"
	"maps"

	"github.com/Seednode/partyroom/games/party"
)

// Phase is a stage of the word-guess game. Phases only move forward.
type Phase int

const (
	CollectingHints Phase = iota
	AccusationVote
	ImpostorRebuttal
	Outcome
)

var phaseNames = [...]string{
	CollectingHints:  "collecting-hints",
	AccusationVote:   "accusation-vote",
	ImpostorRebuttal: "impostor-rebuttal",
	Outcome:          "outcome",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("unknown liar phase %d", int(p))
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
	return fmt.Errorf("unknown liar phase %q", b)
}

// Faction identifies a winning side.
type Faction int

const (
	NoFaction Faction = iota
	Impostor
	Citizens
)

var factionNames = [...]string{
	NoFaction: "",
	Impostor:  "impostor",
	Citizens:  "citizens",
}

func (f Faction) String() string {
	if f < 0 || int(f) >= len(factionNames) {
		return fmt.Sprintf("faction(%d)", int(f))
	}
	return factionNames[f]
}

func (f Faction) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(factionNames) {
		return nil, fmt.Errorf("unknown liar faction %d", int(f))
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
	return fmt.Errorf("unknown liar faction %q", b)
}

// State is the shared word-guess game document.
type State struct {
	Roster     party.Roster `json:"roster"`
	ImpostorID string       `json:"impostor_id,omitempty"`
	Category   string       `json:"category"`
	SecretWord string       `json:"secret_word,omitempty"`
	TurnIndex  int          `json:"turn_index"`
	Phase      Phase        `json:"phase"`

	Hints map[string]string `json:"hints"`
	Votes map[string]string `json:"votes"`

	Rebuttal *string `json:"rebuttal,omitempty"`
	Accused  string  `json:"accused,omitempty"`
	Winner   Faction `json:"winner,omitempty"`
}

func (s State) clone() State {
	next := s
	next.Roster = s.Roster.Clone()
	next.Hints = maps.Clone(s.Hints)
	if next.Hints == nil {
		next.Hints = make(map[string]string)
	}
	next.Votes = maps.Clone(s.Votes)
	if next.Votes == nil {
		next.Votes = make(map[string]string)
	}
	if s.Rebuttal != nil {
		r := *s.Rebuttal
		next.Rebuttal = &r
	}
	return next
}

// CurrentPlayer is the player whose hint is awaited.
func (s State) CurrentPlayer() (party.Player, bool) {
	if s.Phase != CollectingHints || s.TurnIndex < 0 || s.TurnIndex >= len(s.Roster) {
		return party.Player{}, false
	}
	return s.Roster[s.TurnIndex], true
}

// Caught reports whether the closed vote landed on the impostor.
func (s State) Caught() bool {
	return s.Accused != "" && s.Accused == s.ImpostorID
}

// Redact returns the view of s that viewerID may see. Until the outcome, the
// impostor loses the secret word, seated players lose the impostor's id, and
// anyone not seated loses both.
func (s State) Redact(viewerID string) State {
	view := s.clone()
	if s.Phase == Outcome {
		return view
	}

	switch {
	case viewerID == s.ImpostorID:
		view.SecretWord = ""
	case s.Roster.Contains(viewerID):
		view.ImpostorID = ""
	default:
		view.SecretWord = ""
		view.ImpostorID = ""
	}

	return view
}

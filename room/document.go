/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package room owns a game room's lifetime: its membership, the append-only
// event log that is the room's only source of truth, the reducer that folds
// that log into a Document, and the delivery of new documents to watchers.
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/Seednode/partyroom/games/liar"
	"github.com/Seednode/partyroom/games/mafia"
	"github.com/Seednode/partyroom/games/party"
	"github.com/Seednode/partyroom/narrator"
)

// SchemaVersion is the version of the Document encoding written by this
// package.
const SchemaVersion = 1

// DefaultMaxPlayers caps room membership when none is configured.
const DefaultMaxPlayers = 12

var (
	ErrNotFound          = errors.New("room not found")
	ErrConflict          = errors.New("room was modified concurrently")
	ErrUnsupportedSchema = errors.New("unsupported document schema")
	ErrSequenceGap       = errors.New("event sequence gap")

	ErrRoomFull  = fmt.Errorf("%w: room is full", party.ErrIllegalTransition)
	ErrNotHost   = fmt.Errorf("%w: only the host may do that", party.ErrIllegalTransition)
	ErrNotMember = fmt.Errorf("%w: not a member of this room", party.ErrIllegalTransition)
)

// Game selects which rule engine a room runs.
type Game int

const (
	Liar Game = iota + 1
	Mafia
)

var gameNames = map[Game]string{
	Liar:  "liar",
	Mafia: "mafia",
}

func (g Game) String() string {
	if name, ok := gameNames[g]; ok {
		return name
	}
	return "game(" + strconv.Itoa(int(g)) + ")"
}

// ParseGame maps a route or stored name to a Game.
func ParseGame(s string) (Game, error) {
	for g, name := range gameNames {
		if name == s {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown game %q", s)
}

func (g Game) MarshalText() ([]byte, error) {
	name, ok := gameNames[g]
	if !ok {
		return nil, fmt.Errorf("unknown game %d", int(g))
	}
	return []byte(name), nil
}

func (g *Game) UnmarshalText(b []byte) error {
	parsed, err := ParseGame(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Status is where a room is in its lifetime.
type Status int

const (
	Waiting Status = iota
	Playing
	Finished
)

var statusNames = [...]string{
	Waiting:  "waiting",
	Playing:  "playing",
	Finished: "finished",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown room status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown room status %q", b)
}

// Narration is one line of flavor text attached to the room.
type Narration struct {
	Seq  uint64        `json:"seq"`
	Kind narrator.Kind `json:"kind"`
	Text string        `json:"text"`
	At   time.Time     `json:"at"`
}

// Document is the folded state of a room at sequence Seq. Exactly one of
// Liar and Mafia is set once the room is playing.
type Document struct {
	Schema     int          `json:"schema"`
	RoomID     string       `json:"room_id"`
	Game       Game         `json:"game"`
	Status     Status       `json:"status"`
	HostID     string       `json:"host_id,omitempty"`
	MaxPlayers int          `json:"max_players"`
	Members    party.Roster `json:"members"`
	Seq        uint64       `json:"seq"`

	// PhaseSince is when the current stage began; stall timeouts count from it.
	PhaseSince time.Time `json:"phase_since"`
	UpdatedAt  time.Time `json:"updated_at"`

	Liar  *liar.State  `json:"liar,omitempty"`
	Mafia *mafia.State `json:"mafia,omitempty"`

	Narration []Narration `json:"narration,omitempty"`
}

// Stage identifies the current step of the room. It changes whenever
// somebody new is expected to act.
func (d Document) Stage() string {
	switch {
	case d.Liar != nil:
		return fmt.Sprintf("%s/%s/%d", d.Status, d.Liar.Phase, d.Liar.TurnIndex)
	case d.Mafia != nil:
		return fmt.Sprintf("%s/%s/%d", d.Status, d.Mafia.Phase, d.Mafia.Round)
	default:
		return d.Status.String()
	}
}

// Roster is the seated roster once a game has started, else the members.
func (d Document) Roster() party.Roster {
	switch {
	case d.Liar != nil:
		return d.Liar.Roster
	case d.Mafia != nil:
		return d.Mafia.Roster()
	default:
		return d.Members
	}
}

// clone deep-copies the parts of d the reducer mutates in place.
func (d Document) clone() Document {
	next := d
	next.Members = d.Members.Clone()
	next.Narration = slices.Clone(d.Narration)
	return next
}

// View returns what viewerID may see of d.
func (d Document) View(viewerID string) Document {
	view := d.clone()
	if d.Liar != nil {
		s := d.Liar.Redact(viewerID)
		view.Liar = &s
	}
	if d.Mafia != nil {
		s := d.Mafia.Redact(viewerID)
		view.Mafia = &s
	}
	return view
}

// Encode serializes d for storage.
func Encode(d Document) ([]byte, error) {
	if d.Schema == 0 {
		d.Schema = SchemaVersion
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", d.RoomID, err)
	}
	return b, nil
}

// Decode parses a stored document, rejecting schemas it does not know.
func Decode(b []byte) (Document, error) {
	var header struct {
		Schema int `json:"schema"`
	}
	if err := json.Unmarshal(b, &header); err != nil {
		return Document{}, fmt.Errorf("decode room: %w", err)
	}
	if header.Schema < 1 || header.Schema > SchemaVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedSchema, header.Schema)
	}

	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return Document{}, fmt.Errorf("decode room: %w", err)
	}
	return d, nil
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/partyroom/narrator"
)

// SystemActor is the actor id the server uses for events no player issued.
const SystemActor = "system"

// Kind names what an event records.
type Kind string

const (
	KindCreated         Kind = "created"
	KindJoined          Kind = "joined"
	KindReady           Kind = "ready"
	KindLeft            Kind = "left"
	KindHostTransferred Kind = "host-transferred"
	KindStarted         Kind = "started"
	KindFinished        Kind = "finished"
	KindNarrated        Kind = "narrated"

	// Word-guess game.
	KindHint              Kind = "hint"
	KindTurnAdvanced      Kind = "turn-advanced"
	KindVotingClosed      Kind = "voting-closed"
	KindGuess             Kind = "guess"
	KindRebuttalForfeited Kind = "rebuttal-forfeited"

	// Elimination game.
	KindNightAction   Kind = "night-action"
	KindNightResolved Kind = "night-resolved"
	KindVoteOpened    Kind = "vote-opened"
	KindVoteResolved  Kind = "vote-resolved"

	// Both games.
	KindVote Kind = "vote"
)

// hostOnly lists the events only the designated writer may append: the ones
// that resolve a phase rather than fill in the actor's own slot.
var hostOnly = map[Kind]bool{
	KindStarted:           true,
	KindFinished:          true,
	KindTurnAdvanced:      true,
	KindVotingClosed:      true,
	KindRebuttalForfeited: true,
	KindNightResolved:     true,
	KindVoteOpened:        true,
	KindVoteResolved:      true,
}

// HostOnly reports whether k resolves a phase and so needs the host.
func (k Kind) HostOnly() bool {
	return hostOnly[k]
}

// Resolves reports whether k closes the current phase. Such events may carry
// a StagePayload naming the stage they were issued against.
func (k Kind) Resolves() bool {
	return hostOnly[k] && k != KindStarted && k != KindFinished
}

// Event is one entry in a room's log.
type Event struct {
	ID      string          `json:"id"`
	RoomID  string          `json:"room_id"`
	Seq     uint64          `json:"seq"`
	Kind    Kind            `json:"kind"`
	ActorID string          `json:"actor_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Payloads, by kind.
type (
	CreatedPayload struct {
		Game       Game `json:"game"`
		MaxPlayers int  `json:"max_players,omitempty"`
	}
	JoinedPayload struct {
		Name string `json:"name"`
	}
	ReadyPayload struct {
		Ready bool `json:"ready"`
	}
	HostPayload struct {
		HostID string `json:"host_id"`
	}
	StartedPayload struct {
		Seed int64 `json:"seed"`
	}
	TextPayload struct {
		Text string `json:"text"`
	}
	TargetPayload struct {
		Target string `json:"target"`
	}
	NarratedPayload struct {
		Kind narrator.Kind `json:"kind"`
		Text string        `json:"text"`
	}
	// StagePayload pins a resolution to the Document.Stage it was issued
	// against. An empty stage resolves whatever phase is current.
	StagePayload struct {
		Stage string `json:"stage,omitempty"`
	}
)

// NewEvent builds the event that would follow seq.
func NewEvent(roomID string, seq uint64, kind Kind, actorID string, payload any, at time.Time) (Event, error) {
	e := Event{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Seq:     seq,
		Kind:    kind,
		ActorID: actorID,
		At:      at.UTC().Truncate(time.Millisecond),
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		e.Payload = b
	}

	return e, nil
}

func (e Event) decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event %d has no payload", e.Kind, e.Seq)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

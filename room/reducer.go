/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Seednode/partyroom/games/liar"
	"github.com/Seednode/partyroom/games/mafia"
	"github.com/Seednode/partyroom/games/party"
)

const (
	maxNameLength = 32
	maxNarration  = 20
)

// Reducer folds events into documents. It is the only code that changes a
// Document, so every replica that folds the same log agrees on the result.
type Reducer struct {
	// Words is the bank the word-guess game deals from. It must not change
	// under a running log, since the started event only records the seed.
	Words liar.WordBank
}

// Apply folds e onto d. On any error d is returned unchanged.
func (r Reducer) Apply(d Document, e Event) (Document, error) {
	if e.Seq != d.Seq+1 {
		return d, fmt.Errorf("%w: room %s is at %d, event is %d", ErrSequenceGap, d.RoomID, d.Seq, e.Seq)
	}
	if d.RoomID != "" && e.RoomID != d.RoomID {
		return d, fmt.Errorf("event for room %s applied to room %s", e.RoomID, d.RoomID)
	}
	if e.Kind.HostOnly() && (d.HostID == "" || e.ActorID != d.HostID) {
		return d, fmt.Errorf("%w: %s by %q", ErrNotHost, e.Kind, e.ActorID)
	}
	if e.Kind.Resolves() && len(e.Payload) > 0 {
		var p StagePayload
		if err := e.decode(&p); err != nil {
			return d, err
		}
		if p.Stage != "" && p.Stage != d.Stage() {
			return d, party.Illegal("%s issued at %s, room is at %s", e.Kind, p.Stage, d.Stage())
		}
	}

	next, err := r.apply(d.clone(), e)
	if err != nil {
		return d, err
	}

	next.Seq = e.Seq
	next.UpdatedAt = e.At
	if d.Seq == 0 || next.Stage() != d.Stage() {
		next.PhaseSince = e.At
	}

	return next, nil
}

// Replay folds events onto d in order. Events whose preconditions no longer
// hold are skipped but still consume their sequence number; only a break in
// the sequence stops the replay.
func (r Reducer) Replay(d Document, events []Event) (Document, error) {
	for _, e := range events {
		next, err := r.Apply(d, e)
		switch {
		case err == nil:
			d = next
		case errors.Is(err, ErrSequenceGap):
			return d, err
		default:
			d.Seq = e.Seq
		}
	}
	return d, nil
}

func (r Reducer) apply(d Document, e Event) (Document, error) {
	switch e.Kind {
	case KindCreated:
		return created(d, e)
	case KindJoined:
		return joined(d, e)
	case KindReady:
		return ready(d, e)
	case KindLeft:
		return left(d, e)
	case KindHostTransferred:
		return hostTransferred(d, e)
	case KindStarted:
		return r.started(d, e)
	case KindFinished:
		if d.Status == Finished {
			return d, party.Illegal("room already finished")
		}
		d.Status = Finished
		return d, nil
	case KindNarrated:
		return narrated(d, e)

	case KindHint:
		var p TextPayload
		if err := e.decode(&p); err != nil {
			return d, err
		}
		return withLiar(d, func(s liar.State) (liar.State, error) {
			return liar.SubmitHint(s, e.ActorID, p.Text)
		})
	case KindTurnAdvanced:
		return withLiar(d, liar.AdvanceTurn)
	case KindVotingClosed:
		return withLiar(d, liar.CloseVoting)
	case KindGuess:
		var p TextPayload
		if err := e.decode(&p); err != nil {
			return d, err
		}
		return withLiar(d, func(s liar.State) (liar.State, error) {
			return liar.SubmitImpostorGuess(s, e.ActorID, p.Text)
		})
	case KindRebuttalForfeited:
		return withLiar(d, liar.ForfeitRebuttal)

	case KindNightAction:
		var p TargetPayload
		if err := e.decode(&p); err != nil {
			return d, err
		}
		return withMafia(d, func(s mafia.State) (mafia.State, error) {
			return mafia.SetNightAction(s, e.ActorID, p.Target)
		})
	case KindNightResolved:
		return withMafia(d, func(s mafia.State) (mafia.State, error) {
			next, _, err := mafia.ResolveNight(s)
			return next, err
		})
	case KindVoteOpened:
		return withMafia(d, mafia.AdvanceToVote)
	case KindVoteResolved:
		return withMafia(d, func(s mafia.State) (mafia.State, error) {
			next, _, err := mafia.ResolveVote(s)
			return next, err
		})

	case KindVote:
		var p TargetPayload
		if err := e.decode(&p); err != nil {
			return d, err
		}
		switch d.Game {
		case Liar:
			return withLiar(d, func(s liar.State) (liar.State, error) {
				return liar.SubmitVote(s, e.ActorID, p.Target)
			})
		case Mafia:
			return withMafia(d, func(s mafia.State) (mafia.State, error) {
				return mafia.SubmitVote(s, e.ActorID, p.Target)
			})
		}
		return d, party.Illegal("vote in %s", d.Game)

	default:
		return d, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

func created(d Document, e Event) (Document, error) {
	if d.Seq != 0 {
		return d, party.Illegal("room %s already exists", d.RoomID)
	}

	var p CreatedPayload
	if err := e.decode(&p); err != nil {
		return d, err
	}
	if _, ok := gameNames[p.Game]; !ok {
		return d, fmt.Errorf("unknown game %d", int(p.Game))
	}

	limit := p.MaxPlayers
	if limit <= 0 {
		limit = DefaultMaxPlayers
	}
	if limit < party.MinPlayers {
		return d, fmt.Errorf("%w: room capacity %d", party.ErrInsufficientPlayers, limit)
	}

	d = Document{
		Schema:     SchemaVersion,
		RoomID:     e.RoomID,
		Game:       p.Game,
		Status:     Waiting,
		MaxPlayers: limit,
		Members:    party.Roster{},
	}
	if e.ActorID != SystemActor {
		d.HostID = e.ActorID
	}

	return d, nil
}

func joined(d Document, e Event) (Document, error) {
	if d.Status != Waiting {
		return d, party.Illegal("join while %s", d.Status)
	}
	if e.ActorID == "" || e.ActorID == SystemActor {
		return d, party.Illegal("join without a player id")
	}

	var p JoinedPayload
	if err := e.decode(&p); err != nil {
		return d, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return d, party.Illegal("empty display name")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return d, party.Illegal("display name longer than %d characters", maxNameLength)
	}

	for _, m := range d.Members {
		if m.ID != e.ActorID && strings.EqualFold(m.Name, name) {
			return d, party.Illegal("display name %q is taken", name)
		}
	}

	if i := d.Members.Index(e.ActorID); i >= 0 {
		d.Members[i].Name = name
		return d, nil
	}

	if len(d.Members) >= d.MaxPlayers {
		return d, ErrRoomFull
	}

	d.Members = append(d.Members, party.Player{ID: e.ActorID, Name: name})
	if d.HostID == "" {
		d.HostID = e.ActorID
	}

	return d, nil
}

func ready(d Document, e Event) (Document, error) {
	if d.Status != Waiting {
		return d, party.Illegal("ready while %s", d.Status)
	}

	i := d.Members.Index(e.ActorID)
	if i < 0 {
		return d, ErrNotMember
	}

	var p ReadyPayload
	if err := e.decode(&p); err != nil {
		return d, err
	}
	d.Members[i].Ready = p.Ready

	return d, nil
}

// left removes a member from the lobby. Once a game has started the roster
// is fixed, so a departing player keeps their seat and may come back.
func left(d Document, e Event) (Document, error) {
	if !d.Members.Contains(e.ActorID) && e.ActorID != d.HostID {
		return d, ErrNotMember
	}

	if d.Status == Waiting {
		d.Members = slices.DeleteFunc(d.Members, func(p party.Player) bool {
			return p.ID == e.ActorID
		})
	}

	if d.HostID == e.ActorID {
		d.HostID = successor(d, e.ActorID)
	}

	return d, nil
}

// successor is the first member in join order other than id.
func successor(d Document, id string) string {
	for _, m := range d.Members {
		if m.ID != id {
			return m.ID
		}
	}
	return ""
}

func hostTransferred(d Document, e Event) (Document, error) {
	if e.ActorID != SystemActor && e.ActorID != d.HostID {
		return d, fmt.Errorf("%w: host transfer by %q", ErrNotHost, e.ActorID)
	}

	var p HostPayload
	if err := e.decode(&p); err != nil {
		return d, err
	}
	if !d.Members.Contains(p.HostID) {
		return d, fmt.Errorf("%w: %q", ErrNotMember, p.HostID)
	}
	d.HostID = p.HostID

	return d, nil
}

func (r Reducer) started(d Document, e Event) (Document, error) {
	if d.Status != Waiting {
		return d, party.Illegal("start while %s", d.Status)
	}
	if err := d.Members.Validate(party.MinPlayers); err != nil {
		return d, err
	}
	for _, m := range d.Members {
		if !m.Ready {
			return d, party.Illegal("%s is not ready", m.Name)
		}
	}

	var p StartedPayload
	if err := e.decode(&p); err != nil {
		return d, err
	}
	rng := party.NewRand(p.Seed)

	switch d.Game {
	case Liar:
		s, err := liar.New(d.Members, r.Words, rng)
		if err != nil {
			return d, err
		}
		d.Liar = &s
	case Mafia:
		s, err := mafia.New(d.Members, rng)
		if err != nil {
			return d, err
		}
		d.Mafia = &s
	default:
		return d, fmt.Errorf("unknown game %d", int(d.Game))
	}
	d.Status = Playing

	return d, nil
}

func narrated(d Document, e Event) (Document, error) {
	if e.ActorID != SystemActor && e.ActorID != d.HostID {
		return d, fmt.Errorf("%w: narration by %q", ErrNotHost, e.ActorID)
	}

	var p NarratedPayload
	if err := e.decode(&p); err != nil {
		return d, err
	}

	d.Narration = append(d.Narration, Narration{Seq: e.Seq, Kind: p.Kind, Text: p.Text, At: e.At})
	if over := len(d.Narration) - maxNarration; over > 0 {
		d.Narration = slices.Delete(d.Narration, 0, over)
	}

	return d, nil
}

func withLiar(d Document, op func(liar.State) (liar.State, error)) (Document, error) {
	if d.Status != Playing || d.Liar == nil {
		return d, party.Illegal("no word-guess game in progress")
	}

	s, err := op(*d.Liar)
	if err != nil {
		return d, err
	}
	d.Liar = &s
	if s.Phase == liar.Outcome {
		d.Status = Finished
	}

	return d, nil
}

func withMafia(d Document, op func(mafia.State) (mafia.State, error)) (Document, error) {
	if d.Status != Playing || d.Mafia == nil {
		return d, party.Illegal("no elimination game in progress")
	}

	s, err := op(*d.Mafia)
	if err != nil {
		return d, err
	}
	d.Mafia = &s
	if s.Phase == mafia.Outcome {
		d.Status = Finished
	}

	return d, nil
}

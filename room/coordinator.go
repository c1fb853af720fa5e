/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Seednode/partyroom/games/liar"
	"github.com/Seednode/partyroom/games/mafia"
	"github.com/Seednode/partyroom/narrator"
)

// Next returns the resolution the host should append to d, if any: either
// because everyone the current phase waits on has acted, or because the
// phase has been stalled for at least timeout. A zero timeout never forces.
func Next(d Document, now time.Time, timeout time.Duration) (Kind, bool) {
	if d.Status != Playing || d.HostID == "" {
		return "", false
	}

	stalled := timeout > 0 && !d.PhaseSince.IsZero() && now.Sub(d.PhaseSince) >= timeout

	switch {
	case d.Liar != nil:
		s := *d.Liar
		switch s.Phase {
		case liar.CollectingHints:
			current, ok := s.CurrentPlayer()
			_, hinted := s.Hints[current.ID]
			if (ok && hinted) || stalled {
				return KindTurnAdvanced, true
			}
		case liar.AccusationVote:
			if len(s.Votes) >= len(s.Roster) || stalled {
				return KindVotingClosed, true
			}
		case liar.ImpostorRebuttal:
			if stalled {
				return KindRebuttalForfeited, true
			}
		}

	case d.Mafia != nil:
		s := *d.Mafia
		switch s.Phase {
		case mafia.Night:
			if mafia.NightComplete(s) || stalled {
				return KindNightResolved, true
			}
		case mafia.DayDiscussion:
			if stalled {
				return KindVoteOpened, true
			}
		case mafia.DayVote:
			if mafia.VotesComplete(s) || stalled {
				return KindVoteResolved, true
			}
		}
	}

	return "", false
}

// Coordinator resolves phases of one room on behalf of its host and narrates
// the transitions it sees.
type Coordinator struct {
	Service  *Service
	Narrator narrator.Safe
	Logger   *zap.Logger

	// SettleDelay is how long to wait after a resolution becomes possible
	// before re-reading and appending it, so that late writes land first.
	SettleDelay time.Duration

	// PhaseTimeout force-resolves a stalled phase. Zero disables it.
	PhaseTimeout time.Duration

	// Tick is how often a quiet room is checked for a stall.
	Tick time.Duration
}

func (c *Coordinator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Run coordinates roomID until the room finishes, is deleted, or ctx is done.
// It returns once the narrations it started have been recorded.
func (c *Coordinator) Run(ctx context.Context, roomID string) error {
	var narrating sync.WaitGroup
	defer narrating.Wait()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := c.Service.Subscribe(ctx, roomID)

	tick := c.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var last Document
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			if last.Seq > 0 {
				c.narrate(parent, &narrating, last, d)
			}
			last = d
			if d.Status == Finished {
				return nil
			}
			c.step(ctx, d)

		case <-ticker.C:
			if last.Seq > 0 {
				c.step(ctx, last)
			}
		}
	}
}

// step appends the resolution d calls for, after the settle delay and only
// if a fresh read still calls for the same one.
func (c *Coordinator) step(ctx context.Context, d Document) {
	kind, ok := Next(d, c.Service.now(), c.PhaseTimeout)
	if !ok {
		return
	}

	if c.SettleDelay > 0 {
		timer := time.NewTimer(c.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	fresh, err := c.Service.Load(ctx, d.RoomID)
	if err != nil {
		c.logger().Debug("coordinator reload", zap.String("room_id", d.RoomID), zap.Error(err))
		return
	}
	if again, ok := Next(fresh, c.Service.now(), c.PhaseTimeout); !ok || again != kind || fresh.Stage() != d.Stage() {
		return
	}

	_, err = c.Service.Submit(ctx, d.RoomID, Command{
		Kind:    kind,
		ActorID: fresh.HostID,
		Payload: StagePayload{Stage: fresh.Stage()},
	})
	if err != nil {
		c.logger().Debug("coordinator resolution rejected",
			zap.String("room_id", d.RoomID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// narrate records, in order, one narration per transition between prev and
// d. It never blocks the caller; wg tracks the work still in flight.
func (c *Coordinator) narrate(ctx context.Context, wg *sync.WaitGroup, prev, d Document) {
	events := Transitions(prev, d)
	if len(events) == 0 {
		return
	}

	wg.Go(func() {
		for _, e := range events {
			text := c.Narrator.Narrate(ctx, e)
			_, err := c.Service.Submit(ctx, d.RoomID, Command{
				Kind:    KindNarrated,
				ActorID: SystemActor,
				Payload: NarratedPayload{Kind: e.Kind, Text: text},
			})
			if err != nil {
				c.logger().Debug("narration dropped", zap.String("room_id", d.RoomID), zap.Error(err))
			}
		}
	})
}

// Transitions lists the narratable moments between two versions of a room.
func Transitions(prev, d Document) []narrator.Event {
	var out []narrator.Event

	switch {
	case d.Mafia != nil:
		s := *d.Mafia
		var before mafia.State
		if prev.Mafia != nil {
			before = *prev.Mafia
		}
		started := prev.Mafia == nil

		base := narrator.Event{Game: Mafia.String(), Round: s.Round, Alive: names(s.Roster(), s.Living())}
		newlyDead := s.Eliminated[min(len(before.Eliminated), len(s.Eliminated)):]

		dead := func(e narrator.Event) narrator.Event {
			if len(newlyDead) > 0 {
				id := newlyDead[len(newlyDead)-1]
				e.Eliminated = s.Roster().Name(id)
				if seat, ok := s.Seat(id); ok {
					e.EliminatedRole = seat.Role.String()
				}
			}
			return e
		}

		switch {
		case s.Phase == mafia.Night && started:
			e := base
			e.Kind = narrator.NightStart
			out = append(out, e)
		case s.Phase == mafia.Night && before.Phase == mafia.DayVote:
			e := dead(base)
			e.Kind = narrator.VoteResult
			out = append(out, e)
			e = base
			e.Kind = narrator.NightStart
			out = append(out, e)
		case s.Phase == mafia.DayDiscussion && before.Phase == mafia.Night && !started:
			e := dead(base)
			e.Kind = narrator.DayStart
			out = append(out, e)
		case s.Phase == mafia.Outcome && before.Phase != mafia.Outcome && !started:
			switch before.Phase {
			case mafia.DayVote:
				e := dead(base)
				e.Kind = narrator.VoteResult
				out = append(out, e)
			case mafia.Night:
				e := dead(base)
				e.Kind = narrator.DayStart
				out = append(out, e)
			}
			e := dead(base)
			e.Kind = narrator.GameEnd
			e.Winner = s.Winner.String()
			out = append(out, e)
		}

	case d.Liar != nil:
		s := *d.Liar
		var before liar.State
		if prev.Liar != nil {
			before = *prev.Liar
		}
		started := prev.Liar == nil
		base := narrator.Event{Game: Liar.String(), Alive: names(s.Roster, s.Roster.IDs())}

		if started && s.Phase == liar.CollectingHints {
			e := base
			e.Kind = narrator.DayStart
			out = append(out, e)
		}
		if s.Phase > liar.AccusationVote && (started || before.Phase <= liar.AccusationVote) {
			e := base
			e.Kind = narrator.VoteResult
			if s.Accused != "" {
				e.Eliminated = s.Roster.Name(s.Accused)
			}
			out = append(out, e)
		}
		if s.Phase == liar.Outcome && (started || before.Phase != liar.Outcome) {
			e := base
			e.Kind = narrator.GameEnd
			e.Winner = s.Winner.String()
			out = append(out, e)
		}
	}

	return out
}

func names(r interface{ Name(string) string }, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Name(id))
	}
	return out
}

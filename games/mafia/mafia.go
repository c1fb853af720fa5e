/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package mafia implements the elimination game: hidden eliminators remove a
// player each night, everyone votes someone out each day, and the game ends
// when either side can no longer lose.
//
// Operations follow the same policy as the word-guess game: a failed phase or
// actor guard returns the input state unchanged with an error wrapping
// party.ErrIllegalTransition.
package mafia

import "github.com/Seednode/partyroom/games/party"

// RoleCounts returns how many of each role a game of n players deals.
func RoleCounts(n int) map[Role]int {
	counts := make(map[Role]int)
	if n <= 0 {
		return counts
	}

	eliminators := n / 3
	if eliminators < 1 {
		eliminators = 1
	}
	counts[Eliminator] = eliminators

	if n >= 5 {
		counts[Medic] = 1
	}
	if n >= 6 {
		counts[Investigator] = 1
	}

	counts[Bystander] = n - eliminators - counts[Medic] - counts[Investigator]
	if counts[Bystander] <= 0 {
		delete(counts, Bystander)
	}

	return counts
}

// New deals roles over roster: the multiset from RoleCounts, shuffled and
// zipped against roster order. Everyone starts alive on night one.
func New(roster party.Roster, rng party.Rand) (State, error) {
	if err := roster.Validate(party.MinPlayers); err != nil {
		return State{}, err
	}

	counts := RoleCounts(len(roster))
	roles := make([]Role, 0, len(roster))
	for _, r := range []Role{Eliminator, Medic, Investigator, Bystander} {
		for range counts[r] {
			roles = append(roles, r)
		}
	}

	party.Shuffle(rng, len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	seats := make([]Seat, len(roster))
	for i, p := range roster.Seated() {
		seats[i] = Seat{Player: p, Role: roles[i], Alive: true}
	}

	return State{
		Seats:        seats,
		Phase:        Night,
		Round:        1,
		NightActions: make(map[Role]string),
		Votes:        make(map[string]string),
		Eliminated:   []string{},
	}, nil
}

// SetNightAction fills the night slot of actorID's role with targetID.
// Eliminators share one slot, so the last eliminator to choose decides. The
// medic may protect themselves; the investigator may not investigate
// themselves; eliminators may not target one of their own.
func SetNightAction(s State, actorID, targetID string) (State, error) {
	if s.Phase != Night {
		return s, party.Illegal("night action during %s", s.Phase)
	}

	actor, ok := s.Seat(actorID)
	if !ok || !actor.Alive {
		return s, party.Illegal("%q cannot act", actorID)
	}
	if !actor.Role.acting() {
		return s, party.Illegal("%q has no night action", actorID)
	}

	target, ok := s.Seat(targetID)
	if !ok || !target.Alive {
		return s, party.Illegal("target %q is not alive", targetID)
	}

	switch actor.Role {
	case Eliminator:
		if target.Role == Eliminator {
			return s, party.Illegal("eliminators cannot target %q", targetID)
		}
	case Investigator:
		if targetID == actorID {
			return s, party.Illegal("investigator cannot investigate themselves")
		}
	}

	next := s.clone()
	next.NightActions[actor.Role] = targetID

	return next, nil
}

// NightComplete reports whether every acting role with a living holder has
// chosen a target.
func NightComplete(s State) bool {
	if s.Phase != Night {
		return false
	}
	for _, seat := range s.Seats {
		if !seat.Alive || !seat.Role.acting() {
			continue
		}
		if _, ok := s.NightActions[seat.Role]; !ok {
			return false
		}
	}
	return true
}

// NightResult is what happened overnight.
type NightResult struct {
	EliminatedID  string         `json:"eliminated_id,omitempty"`
	Investigation *Investigation `json:"investigation,omitempty"`
}

// ResolveNight applies the night's actions. The eliminators' target dies
// unless the medic protected that same player. The investigation records
// only whether the target is an eliminator.
func ResolveNight(s State) (State, NightResult, error) {
	if s.Phase != Night {
		return s, NightResult{}, party.Illegal("resolve night during %s", s.Phase)
	}

	next := s.clone()
	var result NightResult

	if target, ok := s.NightActions[Investigator]; ok {
		investigator, found := s.holder(Investigator)
		seat, seated := s.Seat(target)
		if found && seated {
			inv := Investigation{
				Round:          s.Round,
				InvestigatorID: investigator,
				TargetID:       target,
				IsEliminator:   seat.Role == Eliminator,
			}
			next.Investigations = append(next.Investigations, inv)
			result.Investigation = &inv
		}
	}

	if target, ok := s.NightActions[Eliminator]; ok && s.IsAlive(target) {
		if protected, saved := s.NightActions[Medic]; !saved || protected != target {
			next = next.kill(target)
			result.EliminatedID = target
		}
	}

	next.NightActions = make(map[Role]string)
	next.Phase = DayDiscussion

	if ended, winner := CheckEndCondition(next); ended {
		next.Phase = Outcome
		next.Winner = winner
	}

	return next, result, nil
}

// holder returns the living player holding a single-seat role.
func (s State) holder(r Role) (string, bool) {
	for _, seat := range s.Seats {
		if seat.Alive && seat.Role == r {
			return seat.ID, true
		}
	}
	return "", false
}

// AdvanceToVote ends the day's discussion.
func AdvanceToVote(s State) (State, error) {
	if s.Phase != DayDiscussion {
		return s, party.Illegal("open vote during %s", s.Phase)
	}

	next := s.clone()
	next.Phase = DayVote

	return next, nil
}

// SubmitVote records or replaces voterID's vote. Both players must be alive.
func SubmitVote(s State, voterID, accusedID string) (State, error) {
	if s.Phase != DayVote {
		return s, party.Illegal("vote during %s", s.Phase)
	}
	if !s.IsAlive(voterID) {
		return s, party.Illegal("voter %q is not alive", voterID)
	}
	if !s.IsAlive(accusedID) {
		return s, party.Illegal("accused %q is not alive", accusedID)
	}
	if voterID == accusedID {
		return s, party.Illegal("%q voted for themselves", voterID)
	}

	next := s.clone()
	next.Votes[voterID] = accusedID

	return next, nil
}

// TallyVotes counts living voters' votes for living candidates.
func TallyVotes(s State) party.Tally {
	return party.CountVotes(s.Roster(), s.Votes, s.IsAlive)
}

// VotesComplete reports whether every living player has voted.
func VotesComplete(s State) bool {
	if s.Phase != DayVote {
		return false
	}
	for _, id := range s.Living() {
		if _, ok := s.Votes[id]; !ok {
			return false
		}
	}
	return true
}

// VoteResult is the outcome of a day vote. Hung is set when the top count
// was tied, or nobody voted, and so nobody was eliminated.
type VoteResult struct {
	EliminatedID string      `json:"eliminated_id,omitempty"`
	Hung         bool        `json:"hung,omitempty"`
	Tally        party.Tally `json:"tally"`
}

// ResolveVote eliminates the clear plurality target, or nobody on a hung
// vote, then starts the next night unless the game is over.
func ResolveVote(s State) (State, VoteResult, error) {
	if s.Phase != DayVote {
		return s, VoteResult{}, party.Illegal("resolve vote during %s", s.Phase)
	}

	result := VoteResult{Tally: TallyVotes(s)}
	next := s.clone()

	if result.Tally.Accused == "" || result.Tally.IsTie() {
		result.Hung = true
	} else {
		next = next.kill(result.Tally.Accused)
		result.EliminatedID = result.Tally.Accused
	}

	next.Votes = make(map[string]string)

	if ended, winner := CheckEndCondition(next); ended {
		next.Phase = Outcome
		next.Winner = winner
		return next, result, nil
	}

	next.Phase = Night
	next.Round++

	return next, result, nil
}

// CheckEndCondition reports whether the game is decided. Citizens win once no
// eliminator is alive; eliminators win once they are at least as many as
// everyone else alive.
func CheckEndCondition(s State) (bool, Faction) {
	var eliminators, others int
	for _, seat := range s.Seats {
		if !seat.Alive {
			continue
		}
		if seat.Role == Eliminator {
			eliminators++
		} else {
			others++
		}
	}

	switch {
	case eliminators == 0:
		return true, Citizens
	case eliminators >= others:
		return true, Eliminators
	default:
		return false, NoFaction
	}
}

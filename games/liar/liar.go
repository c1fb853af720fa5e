/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package liar implements the word-guess game: every player but one knows a
// secret word; players take turns giving a hint, vote on who the impostor is,
// and a caught impostor gets one guess at the word to steal the win.
//
// Every operation is a pure function of its input. Operations whose phase or
// actor precondition fails return the input unchanged along with an error
// wrapping party.ErrIllegalTransition.
package liar

import (
	"strings"

	"github.com/Seednode/partyroom/games/party"
	"golang.org/x/text/cases"
)

// New deals a game: a uniformly chosen impostor, then a category and a word
// drawn uniformly from words. A nil or empty bank uses DefaultWordBank.
func New(roster party.Roster, words WordBank, rng party.Rand) (State, error) {
	if err := roster.Validate(party.MinPlayers); err != nil {
		return State{}, err
	}
	if len(words) == 0 {
		words = DefaultWordBank()
	}
	if err := words.Validate(); err != nil {
		return State{}, err
	}

	impostor := roster[rng.IntN(len(roster))]
	category, word := words.pick(rng)

	return State{
		Roster:     roster.Seated(),
		ImpostorID: impostor.ID,
		Category:   category,
		SecretWord: word,
		TurnIndex:  0,
		Phase:      CollectingHints,
		Hints:      make(map[string]string),
		Votes:      make(map[string]string),
	}, nil
}

// SubmitHint records the hint of the player whose turn it is. It does not
// advance the turn.
func SubmitHint(s State, playerID, text string) (State, error) {
	if s.Phase != CollectingHints {
		return s, party.Illegal("hint during %s", s.Phase)
	}

	current, ok := s.CurrentPlayer()
	if !ok || current.ID != playerID {
		return s, party.Illegal("not %q's turn", playerID)
	}
	if _, done := s.Hints[playerID]; done {
		return s, party.Illegal("%q already gave a hint", playerID)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return s, party.Illegal("empty hint")
	}

	next := s.clone()
	next.Hints[playerID] = text

	return next, nil
}

// AdvanceTurn passes the turn to the next player. After the last player it
// opens the accusation vote instead.
func AdvanceTurn(s State) (State, error) {
	if s.Phase != CollectingHints {
		return s, party.Illegal("advance turn during %s", s.Phase)
	}

	next := s.clone()
	if next.TurnIndex+1 >= len(next.Roster) {
		next.Phase = AccusationVote
		next.TurnIndex = 0
		return next, nil
	}
	next.TurnIndex++

	return next, nil
}

// SubmitVote records or replaces voterID's accusation.
func SubmitVote(s State, voterID, accusedID string) (State, error) {
	if s.Phase != AccusationVote {
		return s, party.Illegal("vote during %s", s.Phase)
	}
	if !s.Roster.Contains(voterID) {
		return s, party.Illegal("voter %q is not seated", voterID)
	}
	if !s.Roster.Contains(accusedID) {
		return s, party.Illegal("accused %q is not seated", accusedID)
	}
	if voterID == accusedID {
		return s, party.Illegal("%q voted for themselves", voterID)
	}

	next := s.clone()
	next.Votes[voterID] = accusedID

	return next, nil
}

// TallyVotes counts the accusation vote. Ties go to the tied candidate
// seated earliest in the roster.
func TallyVotes(s State) party.Tally {
	return party.CountVotes(s.Roster, s.Votes, s.Roster.Contains)
}

// CloseVoting tallies the vote and routes the game: a caught impostor gets a
// rebuttal, otherwise the impostor has evaded detection and the game ends.
func CloseVoting(s State) (State, error) {
	if s.Phase != AccusationVote {
		return s, party.Illegal("close voting during %s", s.Phase)
	}

	next := s.clone()
	next.Accused = TallyVotes(s).Accused

	if next.Caught() {
		next.Phase = ImpostorRebuttal
		return next, nil
	}

	next.Phase = Outcome
	next.Winner = ResolveOutcome(next)

	return next, nil
}

// SubmitImpostorGuess records the caught impostor's one guess at the secret
// word and ends the game, right or wrong.
func SubmitImpostorGuess(s State, playerID, guess string) (State, error) {
	if s.Phase != ImpostorRebuttal {
		return s, party.Illegal("guess during %s", s.Phase)
	}
	if playerID != s.ImpostorID {
		return s, party.Illegal("%q is not the impostor", playerID)
	}

	return settle(s, guess), nil
}

// ForfeitRebuttal ends a rebuttal the impostor never answered.
func ForfeitRebuttal(s State) (State, error) {
	if s.Phase != ImpostorRebuttal {
		return s, party.Illegal("forfeit during %s", s.Phase)
	}

	return settle(s, ""), nil
}

func settle(s State, guess string) State {
	next := s.clone()
	next.Rebuttal = &guess
	next.Phase = Outcome
	next.Winner = ResolveOutcome(next)
	return next
}

// ResolveOutcome names the winner of a finished game: the impostor wins when
// not caught, or when caught but the rebuttal matched the secret word.
func ResolveOutcome(s State) Faction {
	if s.Phase != Outcome {
		return NoFaction
	}
	if !s.Caught() {
		return Impostor
	}
	if s.Rebuttal != nil && GuessMatches(s.SecretWord, *s.Rebuttal) {
		return Impostor
	}
	return Citizens
}

// GuessMatches compares a guess to the secret word ignoring case and
// surrounding whitespace.
func GuessMatches(secret, guess string) bool {
	guess = strings.TrimSpace(guess)
	if guess == "" {
		return false
	}
	fold := cases.Fold()
	return fold.String(guess) == fold.String(strings.TrimSpace(secret))
}

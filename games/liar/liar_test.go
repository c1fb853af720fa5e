/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package liar

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/Seednode/partyroom/games/party"
)

func testRoster(n int) party.Roster {
	r := make(party.Roster, 0, n)
	for i := range n {
		id := string(rune('a' + i))
		r = append(r, party.Player{ID: id, Name: strings.ToUpper(id), Ready: true})
	}
	return r
}

// fixedRand returns its values in order, reduced modulo n.
type fixedRand struct {
	values []int
	next   int
}

func (f *fixedRand) IntN(n int) int {
	v := f.values[f.next%len(f.values)]
	f.next++
	return v % n
}

func newGame(t *testing.T, n, impostor int) State {
	t.Helper()
	s, err := New(testRoster(n), nil, &fixedRand{values: []int{impostor, 0, 0}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func mustApply(t *testing.T) func(State, error) State {
	return func(s State, err error) State {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return s
	}
}

func TestNewDealsImpostorAndWord(t *testing.T) {
	bank := WordBank{{Name: "Colors", Words: []string{"Red", "Blue", "Green"}}}
	s, err := New(testRoster(4), bank, &fixedRand{values: []int{2, 0, 1}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if s.ImpostorID != "c" {
		t.Fatalf("impostor = %q, want c", s.ImpostorID)
	}
	if s.Category != "Colors" || s.SecretWord != "Blue" {
		t.Fatalf("word = %s/%s, want Colors/Blue", s.Category, s.SecretWord)
	}
	if s.Phase != CollectingHints || s.TurnIndex != 0 {
		t.Fatalf("phase = %s turn = %d", s.Phase, s.TurnIndex)
	}
	if len(s.Hints) != 0 || len(s.Votes) != 0 {
		t.Fatal("expected empty hints and votes")
	}
	for _, p := range s.Roster {
		if p.Ready {
			t.Fatalf("player %s kept lobby ready flag", p.ID)
		}
	}
}

func TestNewRejectsSmallRoster(t *testing.T) {
	_, err := New(testRoster(2), nil, party.NewRand(1))
	if !errors.Is(err, party.ErrInsufficientPlayers) {
		t.Fatalf("err = %v, want ErrInsufficientPlayers", err)
	}
}

func TestNewImpostorIsSeated(t *testing.T) {
	f := func(seed int64, size uint8) bool {
		r := testRoster(int(size%10) + 3)
		s, err := New(r, nil, party.NewRand(seed))
		if err != nil {
			return false
		}
		return r.Contains(s.ImpostorID) && s.SecretWord != "" && s.Category != ""
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestSubmitHintGuards(t *testing.T) {
	s := newGame(t, 4, 2)

	tests := []struct {
		name   string
		player string
		text   string
	}{
		{name: "out of turn", player: "b", text: "crunchy"},
		{name: "unknown player", player: "z", text: "crunchy"},
		{name: "blank", player: "a", text: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubmitHint(s, tt.player, tt.text)
			if !party.IsIllegal(err) {
				t.Fatalf("err = %v, want illegal transition", err)
			}
			if !reflect.DeepEqual(got, s) {
				t.Fatal("rejected hint changed state")
			}
		})
	}
}

func TestSubmitHintOncePerPlayer(t *testing.T) {
	s := newGame(t, 3, 0)
	s = mustApply(t)(SubmitHint(s, "a", "round"))

	if _, err := SubmitHint(s, "a", "again"); !party.IsIllegal(err) {
		t.Fatalf("second hint err = %v, want illegal", err)
	}
	if s.TurnIndex != 0 {
		t.Fatalf("hint advanced turn to %d", s.TurnIndex)
	}
}

func TestSubmitHintDoesNotAliasInput(t *testing.T) {
	s := newGame(t, 3, 0)
	next := mustApply(t)(SubmitHint(s, "a", "round"))
	if len(s.Hints) != 0 {
		t.Fatal("input hints mutated")
	}
	if next.Hints["a"] != "round" {
		t.Fatalf("hint = %q", next.Hints["a"])
	}
}

func TestAdvanceTurnIsMonotonic(t *testing.T) {
	f := func(size, calls uint8) bool {
		n := int(size%10) + 3
		s, err := New(testRoster(n), nil, party.NewRand(int64(size)))
		if err != nil {
			return false
		}

		for i := 0; i < int(calls%24); i++ {
			before := s
			next, err := AdvanceTurn(s)
			if before.Phase != CollectingHints {
				if err == nil || !reflect.DeepEqual(next, before) {
					return false
				}
				continue
			}
			if err != nil {
				return false
			}
			switch next.Phase {
			case CollectingHints:
				if next.TurnIndex != before.TurnIndex+1 || next.TurnIndex >= n {
					return false
				}
			case AccusationVote:
				if before.TurnIndex != n-1 || next.TurnIndex != 0 {
					return false
				}
			default:
				return false
			}
			s = next
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestSubmitVoteGuards(t *testing.T) {
	s := newGame(t, 3, 0)
	if _, err := SubmitVote(s, "a", "b"); !party.IsIllegal(err) {
		t.Fatalf("vote during hints err = %v", err)
	}

	for range 3 {
		s = mustApply(t)(AdvanceTurn(s))
	}
	if s.Phase != AccusationVote {
		t.Fatalf("phase = %s", s.Phase)
	}

	if _, err := SubmitVote(s, "a", "a"); !party.IsIllegal(err) {
		t.Fatalf("self vote err = %v", err)
	}
	if _, err := SubmitVote(s, "z", "a"); !party.IsIllegal(err) {
		t.Fatalf("outsider vote err = %v", err)
	}
	if _, err := SubmitVote(s, "a", "z"); !party.IsIllegal(err) {
		t.Fatalf("vote for outsider err = %v", err)
	}
}

func TestSubmitVoteOverwrites(t *testing.T) {
	s := newGame(t, 4, 0)
	for range 4 {
		s = mustApply(t)(AdvanceTurn(s))
	}

	voters := map[string]bool{}
	ballots := [][2]string{{"a", "b"}, {"a", "c"}, {"b", "a"}, {"a", "d"}, {"b", "c"}}
	for _, b := range ballots {
		s = mustApply(t)(SubmitVote(s, b[0], b[1]))
		voters[b[0]] = true
		if len(s.Votes) > len(voters) {
			t.Fatalf("votes = %d entries for %d voters", len(s.Votes), len(voters))
		}
	}
	if s.Votes["a"] != "d" || s.Votes["b"] != "c" {
		t.Fatalf("votes = %v", s.Votes)
	}
}

func TestScenarioImpostorCaughtButGuesses(t *testing.T) {
	s := newGame(t, 4, 2)
	impostor := s.Roster[2].ID

	for _, p := range s.Roster {
		s = mustApply(t)(SubmitHint(s, p.ID, "hint from "+p.Name))
		s = mustApply(t)(AdvanceTurn(s))
	}
	if s.Phase != AccusationVote {
		t.Fatalf("phase = %s, want accusation-vote", s.Phase)
	}

	s = mustApply(t)(SubmitVote(s, "a", impostor))
	s = mustApply(t)(SubmitVote(s, "b", impostor))
	s = mustApply(t)(SubmitVote(s, "d", impostor))
	s = mustApply(t)(SubmitVote(s, impostor, "a"))

	tally := TallyVotes(s)
	if tally.Accused != impostor || tally.Counts[impostor] != 3 {
		t.Fatalf("tally = %+v", tally)
	}

	s = mustApply(t)(CloseVoting(s))
	if !s.Caught() || s.Phase != ImpostorRebuttal {
		t.Fatalf("caught = %v phase = %s", s.Caught(), s.Phase)
	}

	if _, err := SubmitImpostorGuess(s, "a", s.SecretWord); !party.IsIllegal(err) {
		t.Fatalf("non-impostor guess err = %v", err)
	}

	guess := "  " + strings.ToUpper(s.SecretWord) + "\t"
	s = mustApply(t)(SubmitImpostorGuess(s, impostor, guess))
	if s.Phase != Outcome {
		t.Fatalf("phase = %s, want outcome", s.Phase)
	}
	if got := ResolveOutcome(s); got != Impostor {
		t.Fatalf("winner = %s, want impostor", got)
	}
	if s.Winner != Impostor {
		t.Fatalf("recorded winner = %s", s.Winner)
	}
}

func TestCaughtImpostorWrongGuessLoses(t *testing.T) {
	s := newGame(t, 3, 1)
	for range 3 {
		s = mustApply(t)(AdvanceTurn(s))
	}
	s = mustApply(t)(SubmitVote(s, "a", "b"))
	s = mustApply(t)(SubmitVote(s, "c", "b"))
	s = mustApply(t)(CloseVoting(s))
	s = mustApply(t)(SubmitImpostorGuess(s, "b", "definitely not it"))

	if got := ResolveOutcome(s); got != Citizens {
		t.Fatalf("winner = %s, want citizens", got)
	}
	if _, err := SubmitImpostorGuess(s, "b", s.SecretWord); !party.IsIllegal(err) {
		t.Fatalf("second guess err = %v", err)
	}
}

func TestUncaughtImpostorWinsWithoutRebuttal(t *testing.T) {
	s := newGame(t, 3, 1)
	for range 3 {
		s = mustApply(t)(AdvanceTurn(s))
	}
	s = mustApply(t)(SubmitVote(s, "b", "a"))
	s = mustApply(t)(SubmitVote(s, "c", "a"))
	s = mustApply(t)(CloseVoting(s))

	if s.Phase != Outcome || s.Rebuttal != nil {
		t.Fatalf("phase = %s rebuttal = %v", s.Phase, s.Rebuttal)
	}
	if ResolveOutcome(s) != Impostor {
		t.Fatalf("winner = %s", ResolveOutcome(s))
	}
}

func TestTiedVoteUsesRosterOrder(t *testing.T) {
	s := newGame(t, 4, 3)
	for range 4 {
		s = mustApply(t)(AdvanceTurn(s))
	}
	s = mustApply(t)(SubmitVote(s, "a", "d"))
	s = mustApply(t)(SubmitVote(s, "b", "d"))
	s = mustApply(t)(SubmitVote(s, "c", "b"))
	s = mustApply(t)(SubmitVote(s, "d", "b"))

	s = mustApply(t)(CloseVoting(s))
	if s.Accused != "b" {
		t.Fatalf("accused = %q, want b", s.Accused)
	}
	if s.Phase != Outcome || s.Winner != Impostor {
		t.Fatalf("phase = %s winner = %s", s.Phase, s.Winner)
	}
}

func TestNoVotesLetsImpostorEscape(t *testing.T) {
	s := newGame(t, 3, 0)
	for range 3 {
		s = mustApply(t)(AdvanceTurn(s))
	}
	s = mustApply(t)(CloseVoting(s))
	if s.Accused != "" || s.Winner != Impostor {
		t.Fatalf("accused = %q winner = %s", s.Accused, s.Winner)
	}
}

func TestForfeitRebuttal(t *testing.T) {
	s := newGame(t, 3, 0)
	if _, err := ForfeitRebuttal(s); !party.IsIllegal(err) {
		t.Fatalf("forfeit during hints err = %v", err)
	}
	for range 3 {
		s = mustApply(t)(AdvanceTurn(s))
	}
	s = mustApply(t)(SubmitVote(s, "b", "a"))
	s = mustApply(t)(CloseVoting(s))
	s = mustApply(t)(ForfeitRebuttal(s))
	if s.Winner != Citizens {
		t.Fatalf("winner = %s, want citizens", s.Winner)
	}
}

func TestResolveOutcomeBeforeEnd(t *testing.T) {
	if got := ResolveOutcome(newGame(t, 3, 0)); got != NoFaction {
		t.Fatalf("winner = %s, want none", got)
	}
}

func TestGuessMatches(t *testing.T) {
	tests := []struct {
		secret, guess string
		want          bool
	}{
		{"Pizza", "pizza", true},
		{"Pizza", "  PIZZA \n", true},
		{"Movie Theater", "movie theater", true},
		{"Café", "CAFÉ", true},
		{"Pizza", "pizzas", false},
		{"Pizza", "", false},
	}
	for _, tt := range tests {
		if got := GuessMatches(tt.secret, tt.guess); got != tt.want {
			t.Errorf("GuessMatches(%q, %q) = %v, want %v", tt.secret, tt.guess, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	s := newGame(t, 3, 1)

	impostorView := s.Redact("b")
	if impostorView.SecretWord != "" || impostorView.ImpostorID != "b" {
		t.Fatalf("impostor view = %+v", impostorView)
	}
	if impostorView.Category == "" {
		t.Fatal("impostor should still see the category")
	}

	crewView := s.Redact("a")
	if crewView.SecretWord == "" || crewView.ImpostorID != "" {
		t.Fatalf("crew view = %+v", crewView)
	}

	for _, outsider := range []string{"", "spectator"} {
		view := s.Redact(outsider)
		if view.SecretWord != "" || view.ImpostorID != "" {
			t.Fatalf("unseated viewer %q sees secret %q, impostor %q", outsider, view.SecretWord, view.ImpostorID)
		}
	}

	if s.SecretWord == "" || s.ImpostorID == "" {
		t.Fatal("redact mutated the source state")
	}
}

func TestWordBankValidate(t *testing.T) {
	if err := DefaultWordBank().Validate(); err != nil {
		t.Fatalf("default bank: %v", err)
	}
	if len(DefaultWordBank()) != 5 {
		t.Fatalf("default bank has %d categories", len(DefaultWordBank()))
	}

	_, err := LoadWordBank(strings.NewReader(`[{"category":"Empty","words":[]}]`))
	if err == nil {
		t.Fatal("expected error for empty category")
	}
	_, err = LoadWordBank(strings.NewReader(`[]`))
	if err == nil {
		t.Fatal("expected error for empty bank")
	}
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for p := CollectingHints; p <= Outcome; p++ {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatalf("marshal %d: %v", p, err)
		}
		var got Phase
		if err := got.UnmarshalText(b); err != nil || got != p {
			t.Fatalf("round trip %s = %s, %v", p, got, err)
		}
	}
	var p Phase
	if err := p.UnmarshalText([]byte("lobby")); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

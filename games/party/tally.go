/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package party

// Tally is the result of counting one round of votes.
type Tally struct {
	// Accused is the plurality target. On a tie it is the tied candidate
	// sitting earliest in the roster; empty when nobody received a vote.
	Accused string         `json:"accused,omitempty"`
	Counts  map[string]int `json:"counts"`
	// Tied lists, in roster order, every candidate sharing the top count.
	Tied []string `json:"tied,omitempty"`
	Top  int      `json:"top"`
}

// IsTie reports whether more than one candidate shares the top count.
func (t Tally) IsTie() bool {
	return len(t.Tied) > 1
}

// CountVotes tallies votes (voter -> accused), counting a ballot only when
// both voter and accused pass eligible. Candidates are ranked by walking the
// roster in order, so the result never depends on map iteration.
func CountVotes(roster Roster, votes map[string]string, eligible func(id string) bool) Tally {
	t := Tally{Counts: make(map[string]int)}

	for voter, accused := range votes {
		if !eligible(voter) || !eligible(accused) {
			continue
		}
		t.Counts[accused]++
	}

	for _, p := range roster {
		n := t.Counts[p.ID]
		switch {
		case n == 0:
			continue
		case n > t.Top:
			t.Top = n
			t.Tied = []string{p.ID}
		case n == t.Top:
			t.Tied = append(t.Tied, p.ID)
		}
	}

	if len(t.Tied) > 0 {
		t.Accused = t.Tied[0]
	}

	return t
}

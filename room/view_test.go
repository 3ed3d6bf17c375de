package room

import (
	"testing"

	"github.com/lox/holdemroom/handengine"
	"github.com/lox/holdemroom/poker"
)

func TestBuildViewHidesOthersHoleCards(t *testing.T) {
	r := handengine.Room{
		Seats: []handengine.Seat{
			{PlayerID: "alice", HoleCards: []poker.Card{poker.MustParseCard("As"), poker.MustParseCard("Ks")}},
			{PlayerID: "bob", HoleCards: []poker.Card{poker.MustParseCard("2c"), poker.MustParseCard("3d")}},
		},
		Hand: &handengine.Hand{Phase: handengine.PhasePreflop, CurrentTurn: -1},
	}

	v := BuildView(r, "alice")
	if v.Seats[0].HoleCards[0] != "As" {
		t.Errorf("expected alice to see her own cards, got %v", v.Seats[0].HoleCards)
	}
	if v.Seats[1].HoleCards[0] != HiddenCard {
		t.Errorf("expected bob's cards hidden from alice, got %v", v.Seats[1].HoleCards)
	}
}

func TestBuildViewRevealsAtShowdownUnlessFolded(t *testing.T) {
	r := handengine.Room{
		Seats: []handengine.Seat{
			{PlayerID: "alice", HoleCards: []poker.Card{poker.MustParseCard("As"), poker.MustParseCard("Ks")}},
			{PlayerID: "bob", Folded: true, HoleCards: []poker.Card{poker.MustParseCard("2c"), poker.MustParseCard("3d")}},
		},
		Hand: &handengine.Hand{Phase: handengine.PhaseShowdown, CurrentTurn: -1},
	}

	v := BuildView(r, "someone-else")
	if v.Seats[0].HoleCards[0] != "As" {
		t.Errorf("expected unfolded seat revealed at showdown, got %v", v.Seats[0].HoleCards)
	}
	if v.Seats[1].HoleCards[0] != HiddenCard {
		t.Errorf("expected folded seat to stay hidden even at showdown, got %v", v.Seats[1].HoleCards)
	}
}

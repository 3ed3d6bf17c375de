package handengine

import (
	"math/rand"
	"testing"

	"github.com/lox/holdemroom/apperr"
	"github.com/lox/holdemroom/poker"
)

func newTestRoom(creator string, chips ...int) Room {
	seats := make([]Seat, len(chips))
	for i, c := range chips {
		seats[i] = Seat{PlayerID: playerName(i), Chips: c, Connected: true}
	}
	return Room{
		ID:           "room-1",
		Creator:      creator,
		SeatLimit:    9,
		MinBet:       10,
		Status:       StatusWaiting,
		Seats:        seats,
		DealerCursor: -1,
	}
}

func playerName(i int) string {
	return string(rune('A' + i))
}

func seededDeck(seed int64) *poker.Deck {
	return poker.New(rand.New(rand.NewSource(seed)))
}

func mustStart(t *testing.T, room Room, seed int64) (Room, []OutEvent) {
	t.Helper()
	room, out, err := Apply(room, StartHand(room.Creator, seededDeck(seed)))
	if err != nil {
		t.Fatalf("StartHand: %v", err)
	}
	return room, out
}

func TestStartHandRequiresTwoEligibleSeats(t *testing.T) {
	room := newTestRoom("A", 100)
	_, _, err := Apply(room, StartHand("A", seededDeck(1)))
	if err == nil {
		t.Fatalf("expected error starting a hand with 1 seat")
	}
	var ce *apperr.ClientError
	if !asClientError(err, &ce) {
		t.Fatalf("expected a ClientError, got %T: %v", err, err)
	}
}

func asClientError(err error, target **apperr.ClientError) bool {
	ce, ok := err.(*apperr.ClientError)
	if ok {
		*target = ce
	}
	return ok
}

func TestStartHandPostsBlindsAndDealsHoleCards(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, out := mustStart(t, room, 1)

	if room.Hand == nil {
		t.Fatalf("expected an in-progress hand")
	}
	if room.Hand.Phase != PhasePreflop {
		t.Fatalf("expected preflop, got %s", room.Hand.Phase)
	}
	for i, s := range room.Seats {
		if len(s.HoleCards) != 2 {
			t.Errorf("seat %d: expected 2 hole cards, got %d", i, len(s.HoleCards))
		}
	}
	if room.Hand.Pot != 15 {
		t.Errorf("expected pot of 15 (5 SB + 10 BB), got %d", room.Hand.Pot)
	}
	if len(out) == 0 || out[0].Kind != HandStarted {
		t.Errorf("expected a HandStarted out-event, got %+v", out)
	}
}

func TestFoldToLastPlayerAwardsWholePot(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 1)

	firstToAct := room.Hand.CurrentTurn
	room, _, err := Apply(room, PlayerAction(firstToAct, Fold, 0))
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	second := room.Hand.CurrentTurn
	room, out, err := Apply(room, PlayerAction(second, Fold, 0))
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if room.Hand != nil {
		t.Fatalf("expected the hand to end once only one player remains")
	}
	found := false
	for _, e := range out {
		if e.Kind == HandEnded {
			found = true
			if len(e.Awards) != 1 || len(e.Awards[0].Seats) != 1 {
				t.Fatalf("expected a single-seat award, got %+v", e.Awards)
			}
		}
	}
	if !found {
		t.Fatalf("expected a HandEnded out-event, got %+v", out)
	}
}

func TestNotYourTurnIsRejected(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 1)

	wrongSeat := (room.Hand.CurrentTurn + 1) % len(room.Seats)
	_, _, err := Apply(room, PlayerAction(wrongSeat, Fold, 0))
	var ce *apperr.ClientError
	if !asClientError(err, &ce) || ce.Code != apperr.CodeNotYourTurn {
		t.Fatalf("expected CodeNotYourTurn, got %v", err)
	}
}

func TestIllegalCheckWhenFacingABet(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 1)

	firstToAct := room.Hand.CurrentTurn
	seat := room.Seats[firstToAct]
	if seat.Bet == room.Hand.CurrentBet {
		t.Skip("first actor already matches current bet in this deal")
	}
	_, _, err := Apply(room, PlayerAction(firstToAct, Check, 0))
	var ce *apperr.ClientError
	if !asClientError(err, &ce) || ce.Code != apperr.CodeIllegalCheck {
		t.Fatalf("expected CodeIllegalCheck, got %v", err)
	}
}

func TestRoundAdvancesThroughAllStreetsToShowdown(t *testing.T) {
	room := newTestRoom("A", 200, 200, 200)
	room, _ = mustStart(t, room, 7)

	seen := map[Phase]bool{}
	for i := 0; i < 200 && room.Hand != nil; i++ {
		turn := room.Hand.CurrentTurn
		seen[room.Hand.Phase] = true
		var err error
		var out []OutEvent
		if room.Seats[turn].Bet == room.Hand.CurrentBet {
			room, out, err = Apply(room, PlayerAction(turn, Check, 0))
		} else {
			room, out, err = Apply(room, PlayerAction(turn, Call, 0))
		}
		if err != nil {
			t.Fatalf("action at step %d: %v", i, err)
		}
		for _, e := range out {
			if e.Kind == HandEnded {
				i = 1000
			}
		}
	}
	if !seen[PhasePreflop] {
		t.Errorf("expected to observe the preflop phase")
	}
	for _, p := range []Phase{PhaseFlop, PhaseTurn, PhaseRiver} {
		if !seen[p] {
			t.Errorf("expected to observe the %s phase", p)
		}
	}
	if room.Hand != nil {
		t.Errorf("expected the hand to be resolved at showdown, still in %s", room.Hand.Phase)
	}
}

func TestSidePotsMatchUnevenAllInContributions(t *testing.T) {
	// Scenario: P1 all-in for 50 total, P2 and P3 both reach 110.
	room := Room{
		ID:      "room-1",
		Creator: "A",
		MinBet:  10,
		Status:  StatusPlaying,
		Seats: []Seat{
			{PlayerID: "A", TotalBet: 50, HoleCards: []poker.Card{1, 2}},
			{PlayerID: "B", TotalBet: 110, HoleCards: []poker.Card{3, 4}},
			{PlayerID: "C", TotalBet: 110, HoleCards: []poker.Card{5, 6}},
		},
		Hand: &Hand{DealerSeat: 0},
	}
	pots := computeSidePots(room)
	if len(pots) != 2 {
		t.Fatalf("expected 2 pots, got %d: %+v", len(pots), pots)
	}
	if pots[0].Amount != 150 {
		t.Errorf("expected main pot of 150, got %d", pots[0].Amount)
	}
	if len(pots[0].Eligible) != 3 {
		t.Errorf("expected main pot eligible to everyone, got %v", pots[0].Eligible)
	}
	if pots[1].Amount != 120 {
		t.Errorf("expected side pot of 120, got %d", pots[1].Amount)
	}
	if len(pots[1].Eligible) != 2 {
		t.Errorf("expected side pot eligible to B and C only, got %v", pots[1].Eligible)
	}
}

func TestSidePotsExcludeFoldedContributions(t *testing.T) {
	room := Room{
		Seats: []Seat{
			{PlayerID: "A", TotalBet: 50, Folded: true, HoleCards: []poker.Card{1, 2}},
			{PlayerID: "B", TotalBet: 110, HoleCards: []poker.Card{3, 4}},
			{PlayerID: "C", TotalBet: 110, HoleCards: []poker.Card{5, 6}},
		},
	}
	pots := computeSidePots(room)
	total := 0
	for _, p := range pots {
		total += p.Amount
		for _, idx := range p.Eligible {
			if room.Seats[idx].Folded {
				t.Errorf("folded seat %d must never be eligible", idx)
			}
		}
	}
	if total != 270 {
		t.Errorf("expected total pot of 270 preserved across pots, got %d", total)
	}
}

func TestTimeoutOnStaleTurnIsANoOp(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 3)

	staleSeat := (room.Hand.CurrentTurn + 1) % len(room.Seats)
	same, out, err := Apply(room, Timeout(staleSeat))
	if err != nil {
		t.Fatalf("stale timeout should not error: %v", err)
	}
	if out != nil {
		t.Errorf("expected no out-events for a stale timeout, got %+v", out)
	}
	if same.Hand.CurrentTurn != room.Hand.CurrentTurn {
		t.Errorf("stale timeout must not change whose turn it is")
	}
}

func TestTimeoutFoldsTheCurrentSeat(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 3)

	turn := room.Hand.CurrentTurn
	room, out, err := Apply(room, Timeout(turn))
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	found := false
	for _, e := range out {
		if e.Kind == ActionApplied && e.IsTimeout && e.Action == Fold {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a timeout fold out-event, got %+v", out)
	}
}

func TestDisconnectReconnectTogglesConnectedFlag(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _, err := Apply(room, Disconnect(1))
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if room.Seats[1].Connected {
		t.Errorf("expected seat 1 to be disconnected")
	}
	room, _, err = Apply(room, Reconnect(1))
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !room.Seats[1].Connected {
		t.Errorf("expected seat 1 to be reconnected")
	}
}

func TestForceEndRequiresCreator(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 1)
	_, _, err := Apply(room, ForceEnd("B"))
	var ce *apperr.ClientError
	if !asClientError(err, &ce) || ce.Code != apperr.CodeNotCreator {
		t.Fatalf("expected CodeNotCreator, got %v", err)
	}
}

func TestForceEndResolvesInProgressHand(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	room, _ = mustStart(t, room, 1)
	room, out, err := Apply(room, ForceEnd("A"))
	if err != nil {
		t.Fatalf("forceEnd: %v", err)
	}
	if room.Status != StatusFinished {
		t.Errorf("expected room to be finished after forceEnd, got %s", room.Status)
	}
	found := false
	for _, e := range out {
		if e.Kind == HandEnded {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected forceEnd to resolve the hand, got %+v", out)
	}
}

func TestChipConservationAcrossAHand(t *testing.T) {
	room := newTestRoom("A", 100, 100, 100)
	before := 0
	for _, s := range room.Seats {
		before += s.Chips
	}
	room, _ = mustStart(t, room, 9)

	for i := 0; i < 500 && room.Hand != nil; i++ {
		turn := room.Hand.CurrentTurn
		var err error
		if room.Seats[turn].Bet == room.Hand.CurrentBet {
			room, _, err = Apply(room, PlayerAction(turn, Check, 0))
		} else {
			room, _, err = Apply(room, PlayerAction(turn, Call, 0))
		}
		if err != nil {
			t.Fatalf("action: %v", err)
		}
	}

	after := 0
	for _, s := range room.Seats {
		after += s.Chips
	}
	if before != after {
		t.Fatalf("expected chip conservation: before=%d after=%d", before, after)
	}
}

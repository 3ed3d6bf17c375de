package handengine

import (
	"github.com/lox/holdemroom/apperr"
	"github.com/lox/holdemroom/evaluator"
	"github.com/lox/holdemroom/poker"
)

// Apply is the pure function at the heart of the room: (room, event) ->
// (room, emitted events, error). It never performs I/O, never reads the
// clock, and never shares a reference with its input Room (§9).
func Apply(room Room, ev Event) (Room, []OutEvent, error) {
	room = room.clone()

	switch ev.Kind {
	case EventStartHand:
		return applyStartHand(room, ev)
	case EventAction:
		return applyAction(room, ev)
	case EventTimeout:
		return applyTimeout(room, ev)
	case EventDisconnect:
		return applyDisconnect(room, ev)
	case EventReconnect:
		return applyReconnect(room, ev)
	case EventForceEnd:
		return applyForceEnd(room, ev)
	default:
		return room, nil, apperr.Client(apperr.CodeInvalidAction, "unknown event kind %q", ev.Kind)
	}
}

func eligibleForHand(s Seat) bool { return s.Chips > 0 && !s.SittingOut }

func nextEligibleDealer(room Room, from int) int {
	n := len(room.Seats)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if eligibleForHand(room.Seats[idx]) {
			return idx
		}
	}
	return -1
}

// participantOrder returns the seat indices eligible for this hand, in
// clockwise table order starting with the dealer.
func participantOrder(room Room, dealer int) []int {
	n := len(room.Seats)
	var order []int
	for i := 0; i < n; i++ {
		idx := (dealer + i) % n
		if eligibleForHand(room.Seats[idx]) {
			order = append(order, idx)
		}
	}
	return order
}

func applyStartHand(room Room, ev Event) (Room, []OutEvent, error) {
	if ev.RequesterID != room.Creator {
		return room, nil, apperr.Client(apperr.CodeNotCreator, "only the room creator may start a hand")
	}
	if room.Hand != nil {
		return room, nil, apperr.Client(apperr.CodeIllegalPhase, "a hand is already in progress")
	}

	eligibleCount := 0
	for _, s := range room.Seats {
		if eligibleForHand(s) {
			eligibleCount++
		}
	}
	if eligibleCount < 2 {
		return room, nil, apperr.Client(apperr.CodeIllegalPhase, "need at least 2 seated players with chips")
	}
	if ev.Deck == nil {
		return room, nil, apperr.Invariant("missing-deck", "startHand event carried no deck")
	}

	dealer := nextEligibleDealer(room, room.DealerCursor+1)
	room.DealerCursor = dealer
	order := participantOrder(room, dealer)

	var sbSeat, bbSeat int
	if len(order) == 2 {
		sbSeat, bbSeat = order[0], order[1]
	} else {
		sbSeat, bbSeat = order[1], order[2]
	}

	// Clear the previous hand's per-seat flags before dealing the new one.
	for i := range room.Seats {
		room.Seats[i].HoleCards = nil
		room.Seats[i].Folded = false
		room.Seats[i].AllIn = false
		room.Seats[i].Bet = 0
		room.Seats[i].TotalBet = 0
		room.Seats[i].HasActedThisRound = false
		room.Seats[i].IsDealer = false
		room.Seats[i].IsSmallBlind = false
		room.Seats[i].IsBigBlind = false
	}
	room.Seats[dealer].IsDealer = true
	room.Seats[sbSeat].IsSmallBlind = true
	room.Seats[bbSeat].IsBigBlind = true

	deck := ev.Deck
	dealOrder := append(append([]int{}, order[1:]...), order[0])
	for round := 0; round < 2; round++ {
		for _, seatIdx := range dealOrder {
			c, err := deck.Deal()
			if err != nil {
				return room, nil, apperr.Invariant("deck-underflow", "deck exhausted dealing hole cards")
			}
			room.Seats[seatIdx].HoleCards = append(room.Seats[seatIdx].HoleCards, c)
		}
	}

	bigBlind := room.MinBet
	smallBlind := bigBlind / 2

	postBlind := func(seatIdx, amount int) {
		amt := amount
		if room.Seats[seatIdx].Chips < amt {
			amt = room.Seats[seatIdx].Chips
		}
		room.Seats[seatIdx].Bet = amt
		room.Seats[seatIdx].TotalBet = amt
		room.Seats[seatIdx].Chips -= amt
		if room.Seats[seatIdx].Chips == 0 {
			room.Seats[seatIdx].AllIn = true
		}
	}
	postBlind(sbSeat, smallBlind)
	postBlind(bbSeat, bigBlind)

	hand := &Hand{
		Phase:              PhasePreflop,
		Deck:               deck,
		CurrentBet:         bigBlind,
		LastAggressor:      bbSeat,
		DealerSeat:         dealer,
		BigBlind:           bigBlind,
		LastRaiseIncrement: bigBlind,
	}
	room.Hand = hand
	room.Status = StatusPlaying

	firstActor := nextActiveSeat(room, bbSeat+1)
	hand.CurrentTurn = firstActor
	hand.Pot = sumTotalBet(room)

	out := []OutEvent{{Kind: HandStarted, Phase: PhasePreflop}}

	// Heads-up or a blind-less lone survivor: if somehow no one can act
	// (shouldn't happen right after dealing), fall through to showdown
	// resolution rather than leave an invalid turn pointer.
	if firstActor == -1 {
		return resolveNoMoreBetting(room, out)
	}
	return room, out, nil
}

// nextActiveSeat scans clockwise from `from` (inclusive) for a seat that is
// part of the current hand, not folded, and not all-in.
func nextActiveSeat(room Room, from int) int {
	n := len(room.Seats)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		s := room.Seats[idx]
		if s.inHand() && !s.Folded && !s.AllIn {
			return idx
		}
	}
	return -1
}

func sumTotalBet(room Room) int {
	total := 0
	for _, s := range room.Seats {
		total += s.TotalBet
	}
	return total
}

func nonFoldedInHand(room Room) []int {
	var seats []int
	for i, s := range room.Seats {
		if s.inHand() && !s.Folded {
			seats = append(seats, i)
		}
	}
	return seats
}

func activeSeats(room Room) []int {
	var seats []int
	for i, s := range room.Seats {
		if s.inHand() && !s.Folded && !s.AllIn {
			seats = append(seats, i)
		}
	}
	return seats
}

func applyAction(room Room, ev Event) (Room, []OutEvent, error) {
	if room.Hand == nil || room.Status != StatusPlaying {
		return room, nil, apperr.Client(apperr.CodeIllegalPhase, "no hand in progress")
	}
	h := room.Hand
	if ev.Seat < 0 || ev.Seat >= len(room.Seats) {
		return room, nil, apperr.Client(apperr.CodeSeatNotFound, "no such seat %d", ev.Seat)
	}
	if ev.Seat != h.CurrentTurn {
		return room, nil, apperr.Client(apperr.CodeNotYourTurn, "it is not seat %d's turn", ev.Seat)
	}

	seat := &room.Seats[ev.Seat]
	if seat.Folded {
		return room, nil, apperr.Client(apperr.CodeIllegalPhase, "seat has already folded")
	}

	fullRaise := false
	switch ev.Action {
	case Fold:
		seat.Folded = true

	case Check:
		if seat.Bet != h.CurrentBet {
			return room, nil, apperr.Client(apperr.CodeIllegalCheck, "cannot check when there is a bet to call")
		}

	case Call:
		toCall := h.CurrentBet - seat.Bet
		if toCall > seat.Chips {
			toCall = seat.Chips
		}
		seat.Bet += toCall
		seat.TotalBet += toCall
		seat.Chips -= toCall
		if seat.Chips == 0 {
			seat.AllIn = true
		}

	case Bet:
		if h.CurrentBet != 0 {
			return room, nil, apperr.Client(apperr.CodeIllegalPhase, "cannot bet, there is already a bet to call")
		}
		if ev.Amount < room.MinBet {
			return room, nil, apperr.Client(apperr.CodeBetBelowMinimum, "bet must be at least %d", room.MinBet)
		}
		if ev.Amount > seat.Chips {
			return room, nil, apperr.Client(apperr.CodeInsufficientChips, "insufficient chips to bet %d", ev.Amount)
		}
		seat.Bet = ev.Amount
		seat.TotalBet += ev.Amount
		seat.Chips -= ev.Amount
		if seat.Chips == 0 {
			seat.AllIn = true
		}
		h.CurrentBet = ev.Amount
		h.LastAggressor = ev.Seat
		h.LastRaiseIncrement = ev.Amount
		fullRaise = true

	case Raise:
		if h.CurrentBet == 0 {
			return room, nil, apperr.Client(apperr.CodeIllegalPhase, "cannot raise, nothing has been bet yet")
		}
		desiredBet := h.CurrentBet + ev.Amount
		cost := desiredBet - seat.Bet
		if cost <= 0 {
			return room, nil, apperr.Client(apperr.CodeInsufficientChips, "raise amount must be positive")
		}
		if cost < seat.Chips {
			if ev.Amount < h.LastRaiseIncrement {
				return room, nil, apperr.Client(apperr.CodeInsufficientChips,
					"raise must be at least %d", h.LastRaiseIncrement)
			}
			seat.Chips -= cost
			seat.TotalBet += cost
			seat.Bet += cost
			h.CurrentBet = seat.Bet
			h.LastAggressor = ev.Seat
			h.LastRaiseIncrement = ev.Amount
			fullRaise = true
		} else {
			applyAllIn(h, seat, ev.Seat, &fullRaise)
		}

	case AllIn:
		applyAllIn(h, seat, ev.Seat, &fullRaise)

	default:
		return room, nil, apperr.Client(apperr.CodeInvalidAction, "unknown action %q", ev.Action)
	}

	seat.HasActedThisRound = true
	if fullRaise {
		for i := range room.Seats {
			if i != ev.Seat {
				room.Seats[i].HasActedThisRound = false
			}
		}
	}
	h.Pot = sumTotalBet(room)

	out := []OutEvent{{Kind: ActionApplied, Seat: ev.Seat, Action: ev.Action, Amount: ev.Amount}}
	return resolveAfterAction(room, out)
}

// applyAllIn pushes the seat's remaining chips into the pot. If this
// exceeds the current bet it behaves as a raise for lastAggressor
// purposes; it only re-opens action to already-acted seats (fullRaise) if
// the increment meets the standing minimum raise (§4.C all-in / boundary
// behaviors: a short-stack raise below the minimum does not re-open
// action).
func applyAllIn(h *Hand, seat *Seat, seatIdx int, fullRaise *bool) {
	amt := seat.Chips
	seat.Chips = 0
	seat.TotalBet += amt
	seat.Bet += amt
	seat.AllIn = true

	if seat.Bet > h.CurrentBet {
		increment := seat.Bet - h.CurrentBet
		meetsMinimum := increment >= h.LastRaiseIncrement
		h.CurrentBet = seat.Bet
		h.LastAggressor = seatIdx
		if meetsMinimum {
			h.LastRaiseIncrement = increment
			*fullRaise = true
		}
	}
}

// resolveAfterAction implements round completion, phase progression, and
// showdown per §4.C, called after every successfully applied action.
func resolveAfterAction(room Room, out []OutEvent) (Room, []OutEvent, error) {
	remaining := nonFoldedInHand(room)
	if len(remaining) == 1 {
		return resolveSingleWinner(room, remaining[0], out)
	}

	if !roundComplete(room) {
		room.Hand.CurrentTurn = nextActiveSeat(room, room.Hand.CurrentTurn+1)
		return room, out, nil
	}

	return advancePhase(room, out)
}

// roundComplete mirrors the teacher's BettingRound.IsBettingComplete:
// grounded on internal/game/betting.go.
func roundComplete(room Room) bool {
	active := activeSeats(room)
	h := room.Hand
	if len(active) == 0 {
		return true
	}
	if len(active) == 1 {
		return room.Seats[active[0]].Bet == h.CurrentBet
	}
	for _, idx := range active {
		s := room.Seats[idx]
		if s.Bet != h.CurrentBet || !s.HasActedThisRound {
			return false
		}
	}
	return true
}

func resolveSingleWinner(room Room, winner int, out []OutEvent) (Room, []OutEvent, error) {
	pot := room.Hand.Pot
	room.Seats[winner].Chips += pot
	out = append(out, OutEvent{Kind: HandEnded, Awards: []PotAward{{Amount: pot, Seats: []int{winner}}}})
	return endHand(room, out)
}

// advancePhase resets per-round state and deals the next street. If no
// more betting is possible (everyone left is all-in, or a single active
// seat has already matched the bet) it recurses straight through to
// showdown, burning between every street along the way (§4.C phase
// progression's "burn-and-deal remaining board cards... go directly to
// showdown").
func advancePhase(room Room, out []OutEvent) (Room, []OutEvent, error) {
	h := room.Hand
	for i := range room.Seats {
		room.Seats[i].Bet = 0
		room.Seats[i].HasActedThisRound = false
	}
	h.CurrentBet = 0
	h.LastAggressor = -1
	h.LastRaiseIncrement = h.BigBlind

	switch h.Phase {
	case PhasePreflop:
		if err := burnAndDeal(h, 1, 3); err != nil {
			return room, out, err
		}
		h.Phase = PhaseFlop
	case PhaseFlop:
		if err := burnAndDeal(h, 1, 1); err != nil {
			return room, out, err
		}
		h.Phase = PhaseTurn
	case PhaseTurn:
		if err := burnAndDeal(h, 1, 1); err != nil {
			return room, out, err
		}
		h.Phase = PhaseRiver
	case PhaseRiver:
		h.Phase = PhaseShowdown
	}

	out = append(out, OutEvent{Kind: PhaseAdvanced, Phase: h.Phase})

	if h.Phase == PhaseShowdown {
		return runShowdown(room, out)
	}

	active := activeSeats(room)
	if len(active) <= 1 {
		return advancePhase(room, out)
	}

	h.CurrentTurn = nextActiveSeat(room, h.DealerSeat+1)
	return room, out, nil
}

func burnAndDeal(h *Hand, burns, deals int) error {
	for i := 0; i < burns; i++ {
		if err := h.Deck.Burn(); err != nil {
			return apperr.Invariant("deck-underflow", "deck exhausted while burning")
		}
	}
	cards, err := h.Deck.DealN(deals)
	if err != nil {
		return apperr.Invariant("deck-underflow", "deck exhausted dealing community cards")
	}
	h.Community = append(h.Community, cards...)
	return nil
}

// resolveNoMoreBetting is used for the degenerate startHand case where no
// seat can act immediately after dealing (e.g. every seat but one posted
// blinds all-in); it runs the same cascade advancePhase uses.
func resolveNoMoreBetting(room Room, out []OutEvent) (Room, []OutEvent, error) {
	return advancePhase(room, out)
}

func runShowdown(room Room, out []OutEvent) (Room, []OutEvent, error) {
	eligible := nonFoldedInHand(room)
	pots := computeSidePots(room)

	scores := make(map[int]evaluator.Score, len(eligible))
	for _, idx := range eligible {
		s := room.Seats[idx]
		hole := [2]poker.Card{s.HoleCards[0], s.HoleCards[1]}
		result := evaluator.Evaluate(hole, room.Hand.Community)
		scores[idx] = result.Score
	}

	var awards []PotAward
	for _, pot := range pots {
		if len(pot.Eligible) == 0 || pot.Amount == 0 {
			continue
		}
		best := evaluator.Score(0)
		var winners []int
		for _, idx := range pot.Eligible {
			sc := scores[idx]
			if len(winners) == 0 || sc > best {
				best = sc
				winners = []int{idx}
			} else if sc == best {
				winners = append(winners, idx)
			}
		}
		winners = orderClockwiseFromDealer(room, winners)
		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		seatsAwarded := make([]int, 0, len(winners))
		for i, w := range winners {
			amt := share
			if i < remainder {
				amt++
			}
			room.Seats[w].Chips += amt
			seatsAwarded = append(seatsAwarded, w)
		}
		awards = append(awards, PotAward{Amount: pot.Amount, Seats: seatsAwarded})
	}

	out = append(out, OutEvent{Kind: Showdown, Phase: PhaseShowdown, Awards: awards})
	out = append(out, OutEvent{Kind: HandEnded, Awards: awards})
	return endHand(room, out)
}

func orderClockwiseFromDealer(room Room, seats []int) []int {
	dealer := room.Hand.DealerSeat
	n := len(room.Seats)
	ordered := append([]int(nil), seats...)
	dist := func(idx int) int { return (idx - dealer - 1 + n) % n }
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && dist(ordered[j]) < dist(ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// endHand resets hand-level seat fields and decides whether the room is
// ready for another hand or finished (§4.C between-hands and termination).
func endHand(room Room, out []OutEvent) (Room, []OutEvent, error) {
	for i := range room.Seats {
		room.Seats[i].HoleCards = nil
		room.Seats[i].Folded = false
		room.Seats[i].AllIn = false
		room.Seats[i].Bet = 0
		room.Seats[i].TotalBet = 0
		room.Seats[i].HasActedThisRound = false
		room.Seats[i].IsDealer = false
		room.Seats[i].IsSmallBlind = false
		room.Seats[i].IsBigBlind = false
		if room.Seats[i].Chips < room.MinBet {
			room.Seats[i].SittingOut = true
		}
	}
	room.Hand = nil

	eligible := 0
	for _, s := range room.Seats {
		if eligibleForHand(s) {
			eligible++
		}
	}
	if eligible >= 2 {
		room.Status = StatusWaiting
		out = append(out, OutEvent{Kind: WaitingForPlayers})
	} else {
		room.Status = StatusFinished
	}
	return room, out, nil
}

func applyTimeout(room Room, ev Event) (Room, []OutEvent, error) {
	if room.Hand == nil || ev.Seat != room.Hand.CurrentTurn {
		// Stale timer: the turn has moved on since it was scheduled.
		// Best-effort cancellation means this must be a no-op (§5).
		return room, nil, nil
	}
	newRoom, out, err := applyAction(room, PlayerAction(ev.Seat, Fold, 0))
	if err != nil {
		return room, nil, nil
	}
	for i := range out {
		if out[i].Kind == ActionApplied {
			out[i].IsTimeout = true
		}
	}
	return newRoom, out, nil
}

func applyDisconnect(room Room, ev Event) (Room, []OutEvent, error) {
	if ev.Seat < 0 || ev.Seat >= len(room.Seats) {
		return room, nil, apperr.Client(apperr.CodeSeatNotFound, "no such seat %d", ev.Seat)
	}
	room.Seats[ev.Seat].Connected = false
	return room, nil, nil
}

func applyReconnect(room Room, ev Event) (Room, []OutEvent, error) {
	if ev.Seat < 0 || ev.Seat >= len(room.Seats) {
		return room, nil, apperr.Client(apperr.CodeSeatNotFound, "no such seat %d", ev.Seat)
	}
	room.Seats[ev.Seat].Connected = true
	return room, nil, nil
}

func applyForceEnd(room Room, ev Event) (Room, []OutEvent, error) {
	if ev.RequesterID != room.Creator {
		return room, nil, apperr.Client(apperr.CodeNotCreator, "only the room creator may end the room")
	}
	if room.Hand == nil {
		room.Status = StatusFinished
		return room, nil, nil
	}

	remaining := nonFoldedInHand(room)
	var out []OutEvent
	var err error
	if len(remaining) == 1 {
		room, out, err = resolveSingleWinner(room, remaining[0], out)
	} else {
		for room.Hand.Phase != PhaseShowdown {
			switch room.Hand.Phase {
			case PhaseIdle, PhasePreflop:
				err = burnAndDeal(room.Hand, 1, 3)
				room.Hand.Phase = PhaseFlop
			case PhaseFlop:
				err = burnAndDeal(room.Hand, 1, 1)
				room.Hand.Phase = PhaseTurn
			case PhaseTurn:
				err = burnAndDeal(room.Hand, 1, 1)
				room.Hand.Phase = PhaseRiver
			case PhaseRiver:
				room.Hand.Phase = PhaseShowdown
			}
			if err != nil {
				return room, out, err
			}
		}
		room, out, err = runShowdown(room, out)
	}
	if err != nil {
		return room, out, err
	}
	room.Status = StatusFinished
	return room, out, nil
}

// Package handengine implements the pure hand state machine (component C):
// a value type with an Apply(room, event) -> (room, events, error) method,
// generalized from the teacher's internal/game package (HandState,
// BettingRound, PotManager) into snapshot-in/snapshot-out semantics so no
// mutation is ever shared across calls, per the design notes in §9.
package handengine

import (
	"time"

	"github.com/lox/holdemroom/poker"
)

// Status is a Room's lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Phase is the progression of a single hand.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePreflop  Phase = "preflop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
)

// ActionKind is the closed tagged union of player actions (§9: a closed
// tagged union, not the source's ad-hoc string dispatch).
type ActionKind string

const (
	Fold  ActionKind = "fold"
	Check ActionKind = "check"
	Call  ActionKind = "call"
	Bet   ActionKind = "bet"
	Raise ActionKind = "raise"
	AllIn ActionKind = "all-in"
)

// Seat is a stable position at a room (§3).
type Seat struct {
	PlayerID          string
	Username          string
	Chips             int
	Bet               int
	TotalBet          int
	HoleCards         []poker.Card
	Folded            bool
	AllIn             bool
	Connected         bool
	HasActedThisRound bool
	IsDealer          bool
	IsSmallBlind      bool
	IsBigBlind        bool
	// SittingOut seats keep their place at the table but are skipped by
	// startHand's eligibility check and by dealing (supplemented feature:
	// a seat below one big blind between hands is auto-sat-out).
	SittingOut bool
}

func (s Seat) inHand() bool { return len(s.HoleCards) > 0 }

// SeatIndex returns the seat index occupied by playerID, if any. Exported
// for transport-layer callers that only know a player's identity, since
// every handengine.Event addresses seats by index (§9: "Represent
// currentTurn... as seat indices... not by player id").
func (r Room) SeatIndex(playerID string) (int, bool) {
	for i, s := range r.Seats {
		if s.PlayerID == playerID {
			return i, true
		}
	}
	return -1, false
}

// Hand is one deal cycle (§3).
type Hand struct {
	Phase               Phase
	Community           []poker.Card
	Deck                *poker.Deck
	Pot                 int
	CurrentBet          int
	LastAggressor       int // seat index, -1 if none
	CurrentTurn         int // seat index, -1 if none
	DealerSeat          int // seat index of the dealer for this hand
	BigBlind            int
	LastRaiseIncrement  int
}

func (h *Hand) clone() *Hand {
	if h == nil {
		return nil
	}
	cp := *h
	cp.Community = append([]poker.Card(nil), h.Community...)
	if h.Deck != nil {
		d := *h.Deck
		cp.Deck = &d
	}
	return &cp
}

// Room is the container (§3): the only thing the RoomCoordinator mutates,
// and the only input/output of Apply.
type Room struct {
	ID          string
	Name        string
	Creator     string
	SeatLimit   int
	MinBet      int // the big blind; bet/raise sizing floor
	MaxBet      int // 0 means no maximum
	Status      Status
	Seats       []Seat
	DealerCursor int // seat index of the last hand's dealer, -1 if none yet
	Hand        *Hand
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// clone deep-copies everything Apply might mutate, so no two Rooms
// returned from Apply ever share backing arrays (§9: "do not share
// references across mutations").
func (r Room) clone() Room {
	cp := r
	cp.Seats = append([]Seat(nil), r.Seats...)
	for i := range cp.Seats {
		cp.Seats[i].HoleCards = append([]poker.Card(nil), r.Seats[i].HoleCards...)
	}
	cp.Hand = r.Hand.clone()
	return cp
}

// EventKind is one of the six input events the state machine accepts (§4.C).
type EventKind string

const (
	EventStartHand   EventKind = "startHand"
	EventAction      EventKind = "action"
	EventTimeout     EventKind = "timeout"
	EventDisconnect  EventKind = "disconnect"
	EventReconnect   EventKind = "reconnect"
	EventForceEnd    EventKind = "forceEnd"
)

// Event is the single input type Apply accepts.
type Event struct {
	Kind        EventKind
	RequesterID string // startHand / forceEnd: must be the room creator
	Seat        int    // action / timeout / disconnect / reconnect target
	Action      ActionKind
	Amount      int
	// Deck is supplied by the coordinator for startHand so Apply stays a
	// pure function of its inputs: the randomness lives in how the
	// caller built the deck, not inside the state machine (§4.A "no
	// randomness"; §4.B "driven by an injected randomness source").
	Deck *poker.Deck
}

// StartHand builds a startHand event.
func StartHand(requesterID string, deck *poker.Deck) Event {
	return Event{Kind: EventStartHand, RequesterID: requesterID, Deck: deck}
}

// PlayerAction builds an action event.
func PlayerAction(seat int, kind ActionKind, amount int) Event {
	return Event{Kind: EventAction, Seat: seat, Action: kind, Amount: amount}
}

// Timeout builds a coordinator-generated timeout event.
func Timeout(seat int) Event {
	return Event{Kind: EventTimeout, Seat: seat}
}

// Disconnect builds a disconnect event.
func Disconnect(seat int) Event {
	return Event{Kind: EventDisconnect, Seat: seat}
}

// Reconnect builds a reconnect event.
func Reconnect(seat int) Event {
	return Event{Kind: EventReconnect, Seat: seat}
}

// ForceEnd builds a creator-issued forceEnd event.
func ForceEnd(requesterID string) Event {
	return Event{Kind: EventForceEnd, RequesterID: requesterID}
}

// OutKind is one of the outbound event kinds emitted by Apply (§4.C).
type OutKind string

const (
	HandStarted      OutKind = "handStarted"
	ActionApplied    OutKind = "actionApplied"
	PhaseAdvanced    OutKind = "phaseAdvanced"
	Showdown         OutKind = "showdown"
	HandEnded        OutKind = "handEnded"
	WaitingForPlayers OutKind = "waitingForPlayers"
)

// PotAward describes one pot's winners and split amount.
type PotAward struct {
	Amount int
	Seats  []int
}

// OutEvent is one emitted event. Fields not relevant to Kind are zero.
type OutEvent struct {
	Kind      OutKind
	Seat      int // acting seat, for ActionApplied
	Action    ActionKind
	Amount    int
	IsTimeout bool
	Phase     Phase
	Awards    []PotAward
}

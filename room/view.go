// Package room implements components D, E, and F: the RoomCoordinator
// (single-writer serialization, timers, persistence, broadcast), the
// SubscriberBus (per-subscriber hole-card redaction and fan-out), and the
// RoomRegistry (the lobby directory).
package room

import (
	"time"

	"github.com/lox/holdemroom/handengine"
	"github.com/lox/holdemroom/metrics"
	"github.com/lox/holdemroom/poker"
)

// HiddenCard is the opaque placeholder substituted for a hole card a
// subscriber is not entitled to see (§4.E).
const HiddenCard = "??"

// SeatView is one seat as exposed to a particular subscriber.
type SeatView struct {
	PlayerID     string   `json:"playerId"`
	Username     string   `json:"username"`
	Chips        int      `json:"chips"`
	Bet          int      `json:"bet"`
	TotalBet     int      `json:"totalBet"`
	HoleCards    []string `json:"holeCards,omitempty"`
	Folded       bool     `json:"folded"`
	AllIn        bool     `json:"allIn"`
	Connected    bool     `json:"connected"`
	SittingOut   bool     `json:"sittingOut"`
	IsDealer     bool     `json:"isDealer"`
	IsSmallBlind bool     `json:"isSmallBlind"`
	IsBigBlind   bool     `json:"isBigBlind"`
}

// View is the per-subscriber projection of a Room: every field except hole
// cards is exposed verbatim (§4.E); the deck remainder never appears here
// at all.
type View struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	SeatLimit   int        `json:"seatLimit"`
	MinBet      int        `json:"minBet"`
	Seats       []SeatView `json:"seats"`
	Phase       string     `json:"phase,omitempty"`
	Community   []string   `json:"community,omitempty"`
	Pot         int        `json:"pot"`
	CurrentBet  int        `json:"currentBet"`
	CurrentTurn int        `json:"currentTurn"`
	DealerSeat  int        `json:"dealerSeat"`
}

// BuildView projects room for viewerID: the viewer's own hole cards are
// always visible; others' are visible only once the hand reached showdown
// with that seat unfolded; everyone else's are HiddenCard.
func BuildView(r handengine.Room, viewerID string) View {
	v := View{
		ID:        r.ID,
		Name:      r.Name,
		Status:    string(r.Status),
		SeatLimit: r.SeatLimit,
		MinBet:    r.MinBet,
		Seats:       make([]SeatView, len(r.Seats)),
		CurrentTurn: -1,
	}

	atShowdown := r.Hand != nil && r.Hand.Phase == handengine.PhaseShowdown
	if r.Hand != nil {
		v.Phase = string(r.Hand.Phase)
		v.Community = cardStrings(r.Hand.Community)
		v.Pot = r.Hand.Pot
		v.CurrentBet = r.Hand.CurrentBet
		v.CurrentTurn = r.Hand.CurrentTurn
		v.DealerSeat = r.Hand.DealerSeat
	}

	for i, s := range r.Seats {
		sv := SeatView{
			PlayerID:     s.PlayerID,
			Username:     s.Username,
			Chips:        s.Chips,
			Bet:          s.Bet,
			TotalBet:     s.TotalBet,
			Folded:       s.Folded,
			AllIn:        s.AllIn,
			Connected:    s.Connected,
			SittingOut:   s.SittingOut,
			IsDealer:     s.IsDealer,
			IsSmallBlind: s.IsSmallBlind,
			IsBigBlind:   s.IsBigBlind,
		}
		revealed := s.PlayerID == viewerID || (atShowdown && !s.Folded)
		if revealed {
			sv.HoleCards = cardStrings(s.HoleCards)
		} else {
			for range s.HoleCards {
				sv.HoleCards = append(sv.HoleCards, HiddenCard)
			}
		}
		v.Seats[i] = sv
	}
	return v
}

func cardStrings(cards []poker.Card) []string {
	if cards == nil {
		return nil
	}
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

// Summary is the lobby-listing projection (§4.F): enough to populate a
// room browser without exposing any seat's cards.
type Summary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	CurrentPlayers int       `json:"currentPlayers"`
	SeatLimit      int       `json:"seatLimit"`
	MinBet         int       `json:"minBet"`
	MaxBet         int       `json:"maxBet"`
	Degraded       bool      `json:"degraded"`
	HandsPlayed    uint64    `json:"handsPlayed"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BuildSummary projects room into a Summary, grounded on pronitdas's
// GameSummary (hands played, connected players) per SPEC_FULL's "Lobby
// summaries with richer metadata".
func BuildSummary(r handengine.Room, degraded bool, m metrics.Snapshot) Summary {
	players := 0
	for _, s := range r.Seats {
		if s.PlayerID != "" {
			players++
		}
	}
	return Summary{
		ID:             r.ID,
		Name:           r.Name,
		Status:         string(r.Status),
		CurrentPlayers: players,
		SeatLimit:      r.SeatLimit,
		MinBet:         r.MinBet,
		MaxBet:         r.MaxBet,
		Degraded:       degraded,
		HandsPlayed:    m.HandsStarted,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

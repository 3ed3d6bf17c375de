package room

import (
	"time"

	"github.com/lox/holdemroom/apperr"
	"github.com/lox/holdemroom/handengine"
)

// joinSeat implements the joinRoom control operation (§6): it seats
// playerID at the first open seat if the room is still accepting players,
// and is a no-op if playerID already holds a seat. Seating is a
// room-container lifecycle concern, not one of the six HandStateMachine
// events (§3: "Seats are added while waiting"), so it mutates the Room
// directly rather than going through handengine.Apply.
func joinSeat(r handengine.Room, playerID, username string, buyIn int) (handengine.Room, error) {
	for _, s := range r.Seats {
		if s.PlayerID == playerID {
			return r, nil
		}
	}
	if r.Status != handengine.StatusWaiting && r.Status != handengine.StatusPlaying {
		return r, apperr.Client(apperr.CodeRoomNotAcceptingUsers, "room %s is not accepting players", r.ID)
	}

	seats := append([]handengine.Seat(nil), r.Seats...)
	idx := -1
	for i, s := range seats {
		if s.PlayerID == "" {
			idx = i
			break
		}
	}
	if idx == -1 {
		return r, apperr.Client(apperr.CodeRoomFull, "room %s is full", r.ID)
	}

	seats[idx] = handengine.Seat{
		PlayerID:  playerID,
		Username:  username,
		Chips:     buyIn,
		Connected: true,
	}
	r.Seats = seats
	r.UpdatedAt = time.Now()
	return r, nil
}

// leaveSeat implements the leaveRoom control operation (§6): idempotent,
// vacating playerID's seat if held. A seat still holding cards in an
// in-progress hand cannot leave and gets a client error; a seat without
// cards (not dealt into the current hand) is vacated even mid-hand, since
// handengine treats a seat with nil HoleCards as a non-participant.
func leaveSeat(r handengine.Room, playerID string) (handengine.Room, error) {
	seats := append([]handengine.Seat(nil), r.Seats...)
	found := false
	idx := -1
	for i, s := range seats {
		if s.PlayerID == playerID {
			found = true
			idx = i
			break
		}
	}
	if !found {
		return r, nil
	}
	if r.Hand != nil && len(seats[idx].HoleCards) > 0 {
		return r, apperr.Client(apperr.CodeIllegalPhase,
			"cannot leave mid-hand; disconnect and let the seat be removed after the grace window")
	}
	seats[idx] = handengine.Seat{}
	r.Seats = seats
	r.UpdatedAt = time.Now()
	return r, nil
}

// vacateSeat clears seat unconditionally, bypassing leaveSeat's mid-hand
// guard. Callers are responsible for only invoking it once the seat is no
// longer part of an in-progress hand — immediately on disconnect-grace
// expiry if the room is between hands, or deferred (Instance.pendingRemoval)
// until the hand holding its cards ends.
func vacateSeat(r handengine.Room, seat int) handengine.Room {
	if seat < 0 || seat >= len(r.Seats) || r.Seats[seat].PlayerID == "" {
		return r
	}
	seats := append([]handengine.Seat(nil), r.Seats...)
	seats[seat] = handengine.Seat{}
	r.Seats = seats
	r.UpdatedAt = time.Now()
	return r
}

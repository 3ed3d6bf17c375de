package room

import (
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemroom/handengine"
	"github.com/lox/holdemroom/poker"
	"github.com/lox/holdemroom/store"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestInstance(t *testing.T, clock quartz.Clock) (*Instance, handengine.Room) {
	t.Helper()
	r := handengine.Room{
		ID:           "room:test",
		Creator:      "alice",
		SeatLimit:    3,
		MinBet:       10,
		Status:       handengine.StatusWaiting,
		DealerCursor: -1,
		Seats:        make([]handengine.Seat, 3),
	}
	coord := NewCoordinator(clock, store.NewMemory(), testLogger(), 30*time.Second, 60*time.Second, 1000)
	inst := coord.Adopt(r)
	return inst, r
}

func seatPlayers(t *testing.T, inst *Instance, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := inst.Join(ctx, id, id)
		require.NoError(t, err)
	}
}

func TestCoordinatorStartHandAndTurnTimeoutFolds(t *testing.T) {
	clock := quartz.NewMock(t)
	inst, _ := newTestInstance(t, clock)
	seatPlayers(t, inst, "alice", "bob", "carol")

	ctx := context.Background()
	deck := poker.New(rand.New(rand.NewSource(1)))
	r, _, err := inst.Submit(ctx, handengine.StartHand("alice", deck))
	require.NoError(t, err)
	require.Equal(t, handengine.PhasePreflop, r.Hand.Phase)

	turn := r.Hand.CurrentTurn
	require.True(t, turn >= 0)

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	clock.Advance(30 * time.Second).MustWait(waitCtx)

	require.Eventually(t, func() bool {
		snap := inst.Snapshot()
		return snap.Hand == nil || snap.Seats[turn].Folded || snap.Hand.CurrentTurn != turn
	}, time.Second, 10*time.Millisecond, "expected the timed-out seat to fold")
}

func TestCoordinatorJoinIsSerializedAndIdempotent(t *testing.T) {
	clock := quartz.NewMock(t)
	inst, _ := newTestInstance(t, clock)

	ctx := context.Background()
	r1, err := inst.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice", r1.Seats[0].PlayerID)

	r2, err := inst.Join(ctx, "alice", "Alice")
	require.NoError(t, err)
	occupied := 0
	for _, s := range r2.Seats {
		if s.PlayerID == "alice" {
			occupied++
		}
	}
	require.Equal(t, 1, occupied)
}

func TestCoordinatorDisconnectGraceRemovesIdleSeat(t *testing.T) {
	clock := quartz.NewMock(t)
	inst, _ := newTestInstance(t, clock)
	seatPlayers(t, inst, "alice", "bob")

	ctx := context.Background()
	r, _, err := inst.Disconnect(ctx, 1)
	require.NoError(t, err)
	require.False(t, r.Seats[1].Connected)

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	clock.Advance(60 * time.Second).MustWait(waitCtx)

	require.Eventually(t, func() bool {
		return inst.Snapshot().Seats[1].PlayerID == ""
	}, time.Second, 10*time.Millisecond, "expected the disconnected seat to be vacated")

	// The vacated seat is open again for a new player.
	r2, err := inst.Join(ctx, "carol", "carol")
	require.NoError(t, err)
	require.Equal(t, "carol", r2.Seats[1].PlayerID)
}

func TestCoordinatorDisconnectGraceDefersRemovalMidHand(t *testing.T) {
	clock := quartz.NewMock(t)
	inst, _ := newTestInstance(t, clock)
	seatPlayers(t, inst, "alice", "bob", "carol")

	ctx := context.Background()
	deck := poker.New(rand.New(rand.NewSource(3)))
	r, _, err := inst.Submit(ctx, handengine.StartHand("alice", deck))
	require.NoError(t, err)

	disconnected := (r.Hand.CurrentTurn + 2) % len(r.Seats)
	require.NotEmpty(t, r.Seats[disconnected].HoleCards, "seat must still hold cards mid-hand")

	_, _, err = inst.Disconnect(ctx, disconnected)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	clock.Advance(60 * time.Second).MustWait(waitCtx)

	// Still mid-hand and holding cards: vacating now would corrupt the pot,
	// so the seat stays occupied, marked only for deferred removal.
	require.Eventually(t, func() bool {
		return inst.Snapshot().Seats[disconnected].PlayerID != ""
	}, time.Second, 10*time.Millisecond, "disconnected mid-hand seat should stay occupied")

	// Once the hand ends, the deferred removal drains and the seat opens up.
	_, _, err = inst.Submit(ctx, handengine.ForceEnd("alice"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return inst.Snapshot().Seats[disconnected].PlayerID == ""
	}, time.Second, 10*time.Millisecond, "expected the deferred removal to vacate the seat once the hand ended")
}

func TestCoordinatorStaleTimeoutIsNoop(t *testing.T) {
	clock := quartz.NewMock(t)
	inst, _ := newTestInstance(t, clock)
	seatPlayers(t, inst, "alice", "bob")

	ctx := context.Background()
	deck := poker.New(rand.New(rand.NewSource(2)))
	r, _, err := inst.Submit(ctx, handengine.StartHand("alice", deck))
	require.NoError(t, err)

	staleSeat := (r.Hand.CurrentTurn + 1) % len(r.Seats)
	r2, _, err := inst.Submit(ctx, handengine.Timeout(staleSeat))
	require.NoError(t, err)
	require.Equal(t, r.Hand.CurrentTurn, r2.Hand.CurrentTurn)
	require.False(t, r2.Seats[staleSeat].Folded)
}

package room

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lox/holdemroom/apperr"
	"github.com/lox/holdemroom/config"
	"github.com/lox/holdemroom/handengine"
	"github.com/lox/holdemroom/store"
)

// Registry is the lobby directory (component F), generalized from
// GameManager's in-memory map-of-games in internal/server/game_manager.go
// into a thin index over the persistent snapshot store rather than the
// source of truth: the Coordinator owns mutation, the Registry only
// indexes ids and serves listings (§4.F: "it does not own mutation").
type Registry struct {
	coord    *Coordinator
	store    store.Store
	defaults config.RoomDefaults
}

// NewRegistry constructs a Registry backed by coord and st, seeding new
// rooms with defaults.
func NewRegistry(coord *Coordinator, st store.Store, defaults config.RoomDefaults) *Registry {
	return &Registry{coord: coord, store: st, defaults: defaults}
}

// Create makes a new room owned by creatorID and starts its coordinator
// instance.
func (reg *Registry) Create(ctx context.Context, creatorID, name string) (handengine.Room, error) {
	now := timeNow()
	r := handengine.Room{
		ID:           "room:" + uuid.NewString(),
		Name:         name,
		Creator:      creatorID,
		SeatLimit:    reg.defaults.SeatLimit,
		MinBet:       reg.defaults.MinBet,
		MaxBet:       reg.defaults.MaxBet,
		Status:       handengine.StatusWaiting,
		DealerCursor: -1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.Seats = make([]handengine.Seat, r.SeatLimit)

	data, err := store.Encode(newRoomSnapshot(r))
	if err != nil {
		return handengine.Room{}, apperr.Transient("encode-room", err)
	}
	if err := reg.store.Put(ctx, r.ID, data); err != nil {
		return handengine.Room{}, apperr.Transient("persist-room", err)
	}
	reg.coord.Adopt(r)
	return r, nil
}

// Rehydrate loads every room persisted in the store and adopts it into the
// coordinator, for process-restart recovery (§7). Call once at startup,
// before serving traffic; a snapshot that fails to read or decode is
// skipped rather than aborting the rest of the rehydration.
func (reg *Registry) Rehydrate(ctx context.Context) error {
	keys, err := reg.store.ListWithPrefix(ctx, "room:")
	if err != nil {
		return apperr.Transient("list-rooms", err)
	}
	for _, key := range keys {
		data, err := reg.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var snap RoomSnapshot
		if err := store.Decode(data, &snap); err != nil {
			continue
		}
		reg.coord.Adopt(snap.toRoom())
	}
	return nil
}

// Lookup returns the live instance for roomID, if the coordinator is
// currently running it.
func (reg *Registry) Lookup(roomID string) (*Instance, bool) {
	return reg.coord.Instance(roomID)
}

// List enumerates rooms with status == waiting and currentPlayers <
// seatLimit, sorted by creation time descending (§4.F).
func (reg *Registry) List(ctx context.Context) ([]Summary, error) {
	keys, err := reg.store.ListWithPrefix(ctx, "room:")
	if err != nil {
		return nil, apperr.Transient("list-rooms", err)
	}

	var summaries []Summary
	for _, key := range keys {
		inst, ok := reg.coord.Instance(key)
		if !ok {
			continue
		}
		r := inst.Snapshot()
		players := 0
		for _, s := range r.Seats {
			if s.PlayerID != "" {
				players++
			}
		}
		if r.Status != handengine.StatusWaiting || players >= r.SeatLimit {
			continue
		}
		summaries = append(summaries, BuildSummary(r, inst.Degraded(), inst.Metrics()))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// timeNow is the one place wall-clock time enters this package's own
// state, isolated here so callers that need determinism (tests) can shadow
// it; handengine.Apply itself never touches the clock (§9 purity).
var timeNow = time.Now

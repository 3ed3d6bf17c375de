package room

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdemroom/apperr"
	"github.com/lox/holdemroom/handengine"
	"github.com/lox/holdemroom/metrics"
	"github.com/lox/holdemroom/poker"
	"github.com/lox/holdemroom/store"
)

const (
	maxPersistRetries = 3
	retryBaseDelay    = 50 * time.Millisecond
)

// job is one queued unit of work for a room's single writer goroutine,
// grounded on BotPool's register/unregister/matchTrigger channel design in
// internal/server/pool.go, generalized from a fixed set of named channels
// into a single ordered job queue carrying arbitrary handengine.Events
// (§5: "Each room has an implicit message queue; only one event is applied
// at a time; order is insertion order").
type job struct {
	event handengine.Event
	// fn, when set, bypasses handengine.Apply entirely — used for
	// coordinator-internal mutations (disconnect-grace seat removal) that
	// still need the writer goroutine's total ordering but aren't one of
	// the six handengine events.
	fn    func(handengine.Room) (handengine.Room, []handengine.OutEvent, error)
	reply chan<- jobResult
}

type jobResult struct {
	room handengine.Room
	out  []handengine.OutEvent
	err  error
}

// Instance owns one room's single-writer goroutine, its turn-deadline and
// disconnect-grace timers, and its subscriber bus.
type Instance struct {
	id      string
	clock   quartz.Clock
	logger  *log.Logger
	store   store.Store
	bus     *Bus
	metrics *metrics.Room

	jobs     chan job
	seatJobs chan seatMutation
	stop     chan struct{}
	stopped  chan struct{}

	turnTimeout     time.Duration
	disconnectGrace time.Duration
	buyIn           int

	turnTimer        *quartz.Timer
	disconnectTimers map[int]*quartz.Timer

	// pendingRemoval tracks seats whose disconnect-grace timer fired while
	// they still held cards in an in-progress hand: vacating the seat
	// immediately would corrupt pot/showdown accounting (handengine/pot.go
	// keys off TotalBet), so removal is deferred until drainPendingRemovals
	// observes the hand no longer holds that seat's cards.
	pendingRemoval map[int]bool

	degraded bool
	room     handengine.Room
}

// seatMutation is a room-membership change (join/leave): unlike a
// handengine.Event, it mutates seat occupancy directly rather than hand
// state, since §3 treats seating as the room container's own lifecycle,
// not one of the HandStateMachine's six events. It still runs on the
// instance's single writer goroutine so it is totally ordered with every
// action and timer tick (§4.D).
type seatMutation struct {
	fn    func(handengine.Room) (handengine.Room, error)
	reply chan<- jobResult
}

// Coordinator is the single authoritative owner of every room's mutable
// state (component D). It is the only path by which a Room is ever
// mutated, per §4.D.
type Coordinator struct {
	clock           quartz.Clock
	logger          *log.Logger
	store           store.Store
	turnTimeout     time.Duration
	disconnectGrace time.Duration
	buyIn           int

	instances map[string]*Instance
}

// NewCoordinator constructs a Coordinator. clock is injected so tests can
// use quartz.NewMock; production wiring passes quartz.NewReal(). buyIn
// seeds every newly joined seat's starting stack (config.RoomDefaults.BuyIn)
// since this module has no wallet/ledger to draw a buy-in from (§1
// Non-goals).
func NewCoordinator(clock quartz.Clock, st store.Store, logger *log.Logger, turnTimeout, disconnectGrace time.Duration, buyIn int) *Coordinator {
	return &Coordinator{
		clock:           clock,
		logger:          logger,
		store:           st,
		turnTimeout:     turnTimeout,
		disconnectGrace: disconnectGrace,
		buyIn:           buyIn,
		instances:       make(map[string]*Instance),
	}
}

// Adopt registers an already-created room (e.g. just built by the
// registry) with the coordinator and starts its writer goroutine.
func (c *Coordinator) Adopt(r handengine.Room) *Instance {
	inst := &Instance{
		id:               r.ID,
		clock:            c.clock,
		logger:           c.logger,
		store:            c.store,
		bus:              NewBus(c.logger),
		jobs:             make(chan job, 32),
		seatJobs:         make(chan seatMutation, 8),
		stop:             make(chan struct{}),
		stopped:          make(chan struct{}),
		turnTimeout:      c.turnTimeout,
		disconnectGrace:  c.disconnectGrace,
		buyIn:            c.buyIn,
		disconnectTimers: make(map[int]*quartz.Timer),
		pendingRemoval:   make(map[int]bool),
		metrics:          metrics.NewRoom(r.CreatedAt),
		room:             r,
	}
	c.instances[r.ID] = inst
	go inst.run()
	return inst
}

// Instance looks up a room's running writer, if any.
func (c *Coordinator) Instance(roomID string) (*Instance, bool) {
	inst, ok := c.instances[roomID]
	return inst, ok
}

// Remove stops a room's writer goroutine. Called once a room reaches
// Finished and has been fully drained.
func (c *Coordinator) Remove(roomID string) {
	if inst, ok := c.instances[roomID]; ok {
		close(inst.stop)
		<-inst.stopped
		delete(c.instances, roomID)
	}
}

// Submit enqueues ev for application and waits for the result. This is the
// only entry point actions and timer callbacks use to reach the state
// machine (§4.D).
func (inst *Instance) Submit(ctx context.Context, ev handengine.Event) (handengine.Room, []handengine.OutEvent, error) {
	reply := make(chan jobResult, 1)
	select {
	case inst.jobs <- job{event: ev, reply: reply}:
	case <-ctx.Done():
		return handengine.Room{}, nil, ctx.Err()
	case <-inst.stop:
		return handengine.Room{}, nil, apperr.Client(apperr.CodeRoomNotFound, "room %s is no longer running", inst.id)
	}

	select {
	case res := <-reply:
		return res.room, res.out, res.err
	case <-ctx.Done():
		return handengine.Room{}, nil, ctx.Err()
	}
}

// Snapshot returns the instance's last-applied room state without going
// through the writer queue, for read-only lookups (§4.D: "readers... get a
// consistent snapshot but may lag the latest applied action").
func (inst *Instance) Snapshot() handengine.Room {
	return inst.room
}

// Degraded reports whether persistence has exhausted its retries for this
// room (§7).
func (inst *Instance) Degraded() bool { return inst.degraded }

// Bus exposes the instance's subscriber fan-out point.
func (inst *Instance) Bus() *Bus { return inst.bus }

func (inst *Instance) run() {
	defer close(inst.stopped)
	for {
		select {
		case j := <-inst.jobs:
			inst.apply(j)
		case m := <-inst.seatJobs:
			inst.mutate(m)
		case <-inst.stop:
			return
		}
	}
}

// mutate applies a seat-membership change on the writer goroutine, then
// performs the same two suspension points (persist, broadcast) an
// event-driven apply does, outside any exclusive section (§5).
func (inst *Instance) mutate(m seatMutation) {
	if inst.degraded {
		m.reply <- jobResult{room: inst.room, err: apperr.Client(apperr.CodeDegraded, "room %s is degraded", inst.id)}
		return
	}
	newRoom, err := m.fn(inst.room)
	if err != nil {
		m.reply <- jobResult{room: inst.room, err: err}
		return
	}
	inst.room = newRoom
	m.reply <- jobResult{room: newRoom}

	inst.persistAndBroadcast(inst.drainPendingRemovals(newRoom))
}

// Join seats playerID at the first open seat, starting them with the
// coordinator's configured buy-in. Idempotent: re-joining while the player
// already holds a seat returns the current room unchanged (§6 "Idempotent
// on re-join while player holds a seat").
func (inst *Instance) Join(ctx context.Context, playerID, username string) (handengine.Room, error) {
	return inst.submitSeatMutation(ctx, func(r handengine.Room) (handengine.Room, error) {
		return joinSeat(r, playerID, username, inst.buyIn)
	})
}

// Leave vacates playerID's seat, if any. Idempotent (§6).
func (inst *Instance) Leave(ctx context.Context, playerID string) (handengine.Room, error) {
	return inst.submitSeatMutation(ctx, func(r handengine.Room) (handengine.Room, error) {
		return leaveSeat(r, playerID)
	})
}

// runEvent enqueues ev on the writer goroutine without waiting for the
// result, for coordinator-internal callers (timer callbacks) that only need
// the event applied, not its outcome.
func (inst *Instance) runEvent(ev handengine.Event) {
	reply := make(chan jobResult, 1)
	select {
	case inst.jobs <- job{event: ev, reply: reply}:
	case <-inst.stop:
	}
}

// runJob is runEvent's counterpart for coordinator-internal mutations that
// bypass handengine.Apply (see job.fn).
func (inst *Instance) runJob(fn func(handengine.Room) (handengine.Room, []handengine.OutEvent, error)) {
	reply := make(chan jobResult, 1)
	select {
	case inst.jobs <- job{fn: fn, reply: reply}:
	case <-inst.stop:
	}
}

func (inst *Instance) submitSeatMutation(ctx context.Context, fn func(handengine.Room) (handengine.Room, error)) (handengine.Room, error) {
	reply := make(chan jobResult, 1)
	select {
	case inst.seatJobs <- seatMutation{fn: fn, reply: reply}:
	case <-ctx.Done():
		return handengine.Room{}, ctx.Err()
	case <-inst.stop:
		return handengine.Room{}, apperr.Client(apperr.CodeRoomNotFound, "room %s is no longer running", inst.id)
	}
	select {
	case res := <-reply:
		return res.room, res.err
	case <-ctx.Done():
		return handengine.Room{}, ctx.Err()
	}
}

// apply is the only place a room's state is mutated: it runs Apply under
// the writer's implicit single-goroutine section, then performs the two
// suspension points — persistence write and broadcast — after that
// section, exactly as §4.D and §5 require.
func (inst *Instance) apply(j job) {
	exempt := j.event.Kind == handengine.EventForceEnd || j.fn != nil
	if inst.degraded && !exempt {
		j.reply <- jobResult{room: inst.room, err: apperr.Client(apperr.CodeDegraded, "room %s is degraded", inst.id)}
		return
	}

	var newRoom handengine.Room
	var out []handengine.OutEvent
	var err error
	if j.fn != nil {
		newRoom, out, err = j.fn(inst.room)
	} else {
		newRoom, out, err = handengine.Apply(inst.room, j.event)
	}
	if err != nil {
		j.reply <- jobResult{room: inst.room, err: err}
		return
	}
	inst.room = newRoom
	j.reply <- jobResult{room: newRoom, out: out}
	inst.recordMetrics(j.event, out)

	inst.rescheduleTurnTimer(newRoom)
	inst.persistAndBroadcast(inst.drainPendingRemovals(newRoom))
}

// drainPendingRemovals vacates every seat flagged by removeSeat whose
// disconnect-grace timer expired while a hand still held its cards, once
// that hand no longer does (it folded and the hand advanced, or the hand
// ended outright). Returns the room reflecting any vacates so the caller's
// persist/broadcast sees them in the same pass.
func (inst *Instance) drainPendingRemovals(r handengine.Room) handengine.Room {
	for seat, pending := range inst.pendingRemoval {
		if !pending {
			continue
		}
		if r.Hand != nil && seat < len(r.Seats) && len(r.Seats[seat].HoleCards) > 0 {
			continue
		}
		r = vacateSeat(r, seat)
		delete(inst.pendingRemoval, seat)
	}
	inst.room = r
	return r
}

// persistAndBroadcast runs the two post-mutation suspension points (§4.D,
// §5: persistence write and subscriber broadcast) concurrently, since
// neither depends on the other's outcome — generalized from the teacher's
// sequential "save then notify" calls in internal/server/pool.go into an
// errgroup.Group so a slow store write never delays the broadcast a
// subscriber is waiting on.
func (inst *Instance) persistAndBroadcast(r handengine.Room) {
	var g errgroup.Group
	g.Go(func() error {
		inst.persistWithRetry(r)
		return nil
	})
	g.Go(func() error {
		inst.bus.Publish(r)
		return nil
	})
	g.Wait()
}

// Metrics exposes the instance's lifetime counters (supplemented feature:
// hand-start/action/timeout counts, grounded on BotPool's timeoutCounter).
func (inst *Instance) Metrics() metrics.Snapshot { return inst.metrics.Snapshot() }

// recordMetrics increments the instance's counters based on what Apply just
// emitted and the event that triggered it.
func (inst *Instance) recordMetrics(ev handengine.Event, out []handengine.OutEvent) {
	if ev.Kind == handengine.EventTimeout {
		inst.metrics.Timeout()
	}
	for _, o := range out {
		switch o.Kind {
		case handengine.HandStarted:
			inst.metrics.HandStarted()
		case handengine.ActionApplied:
			inst.metrics.Action()
		}
	}
}

// persistWithRetry writes the snapshot with bounded backoff; on exhaustion
// the room is reloaded from its last successfully persisted snapshot and
// marked degraded (§7: "the room is reloaded from the last successful
// snapshot").
func (inst *Instance) persistWithRetry(r handengine.Room) {
	data, err := store.Encode(newRoomSnapshot(r))
	if err != nil {
		inst.logger.Error("snapshot encode failed", "room", inst.id, "err", err)
		return
	}
	delay := retryBaseDelay
	for attempt := 0; attempt < maxPersistRetries; attempt++ {
		if err := inst.store.Put(context.Background(), inst.id, data); err == nil {
			return
		} else if attempt == maxPersistRetries-1 {
			inst.logger.Error("persistence exhausted, degrading room", "room", inst.id, "err", err)
			inst.degraded = true
			inst.reloadLastGoodSnapshot()
			inst.bus.Publish(inst.room)
			return
		}
		inst.clock.Sleep(delay)
		delay *= 2
	}
}

// reloadLastGoodSnapshot replaces inst.room with whatever the store last
// successfully persisted, since the in-memory room (the one that just
// failed to persist) may have diverged from durable state by the time
// retries are exhausted. Leaves inst.room untouched if the store itself
// can't be read (e.g. it's the same failure that exhausted the retries).
func (inst *Instance) reloadLastGoodSnapshot() {
	data, err := inst.store.Get(context.Background(), inst.id)
	if err != nil {
		inst.logger.Error("reload from last snapshot failed", "room", inst.id, "err", err)
		return
	}
	var snap RoomSnapshot
	if err := store.Decode(data, &snap); err != nil {
		inst.logger.Error("last snapshot is corrupt", "room", inst.id, "err", err)
		return
	}
	inst.room = snap.toRoom()
}

// rescheduleTurnTimer cancels any pending turn timer and starts a fresh
// one for the new currentTurn (§4.D per-turn deadline).
func (inst *Instance) rescheduleTurnTimer(r handengine.Room) {
	if inst.turnTimer != nil {
		inst.turnTimer.Stop()
		inst.turnTimer = nil
	}
	if r.Hand == nil || r.Hand.CurrentTurn < 0 {
		return
	}
	seat := r.Hand.CurrentTurn
	inst.turnTimer = inst.clock.AfterFunc(inst.turnTimeout, func() {
		inst.runEvent(handengine.Timeout(seat))
	})
}

// Disconnect marks seat disconnected and starts its reconnection-grace
// timer (§4.D disconnect grace).
func (inst *Instance) Disconnect(ctx context.Context, seat int) (handengine.Room, []handengine.OutEvent, error) {
	r, out, err := inst.Submit(ctx, handengine.Disconnect(seat))
	if err != nil {
		return r, out, err
	}
	inst.disconnectTimers[seat] = inst.clock.AfterFunc(inst.disconnectGrace, func() {
		inst.removeSeat(seat)
	})
	return r, out, nil
}

// Reconnect cancels seat's reconnection-grace timer and restores it.
func (inst *Instance) Reconnect(ctx context.Context, seat int) (handengine.Room, []handengine.OutEvent, error) {
	if t, ok := inst.disconnectTimers[seat]; ok {
		t.Stop()
		delete(inst.disconnectTimers, seat)
	}
	return inst.Submit(ctx, handengine.Reconnect(seat))
}

// removeSeat is invoked when the reconnection grace timer expires (§4.D:
// "If the reconnection timer expires, remove the seat"). A seat idle
// between hands, or already folded out of the current one, is vacated
// immediately. A seat still holding cards mid-hand can't be vacated without
// corrupting pot accounting, so it is instead marked pendingRemoval: if its
// departure would leave only one other active seat the hand is forced to a
// single-winner end right away (§4.D: "leaves only one active seat mid-hand,
// the hand ends as a single-winner"), and since this goes through ForceEnd
// the room is marked finished as well; otherwise it is left in place to be
// folded by its own turn timeout (disconnected seats get no deadline
// extension) and physically vacated once drainPendingRemovals sees the hand
// release its cards.
func (inst *Instance) removeSeat(seat int) {
	inst.runJob(func(r handengine.Room) (handengine.Room, []handengine.OutEvent, error) {
		if seat < 0 || seat >= len(r.Seats) || r.Seats[seat].PlayerID == "" {
			return r, nil, nil
		}
		if r.Hand == nil || len(r.Seats[seat].HoleCards) == 0 || r.Seats[seat].Folded {
			return vacateSeat(r, seat), nil, nil
		}

		remaining := 0
		for i, s := range r.Seats {
			if i != seat && len(s.HoleCards) > 0 && !s.Folded {
				remaining++
			}
		}
		if remaining > 1 {
			inst.pendingRemoval[seat] = true
			return r, nil, nil
		}
		// Fold the departing seat first so ForceEnd awards the pot to the
		// lone remaining seat instead of running a showdown against it.
		seats := append([]handengine.Seat(nil), r.Seats...)
		seats[seat].Folded = true
		r.Seats = seats
		newRoom, out, err := handengine.Apply(r, handengine.ForceEnd(r.Creator))
		if err != nil {
			return r, nil, err
		}
		inst.pendingRemoval[seat] = true
		return newRoom, out, nil
	})
}

// RoomSnapshot is the wire/storage shape of a Room (§6): plain data,
// including the in-progress Hand's deck state (deckSnapshot) so a room with
// a hand underway can be reloaded byte-for-byte from its last successful
// snapshot (§7), not just between-hand rooms. A nil Hand means the room is
// between hands.
type RoomSnapshot struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Creator      string            `json:"creator"`
	SeatLimit    int               `json:"seatLimit"`
	MinBet       int               `json:"minBet"`
	MaxBet       int               `json:"maxBet"`
	Status       string            `json:"status"`
	Seats        []handengine.Seat `json:"seats"`
	DealerCursor int               `json:"dealerCursor"`
	Hand         *handSnapshot     `json:"hand,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

type handSnapshot struct {
	Phase              string        `json:"phase"`
	Community          []poker.Card  `json:"community"`
	Deck               *deckSnapshot `json:"deck,omitempty"`
	Pot                int           `json:"pot"`
	CurrentBet         int           `json:"currentBet"`
	LastAggressor      int           `json:"lastAggressor"`
	CurrentTurn        int           `json:"currentTurn"`
	DealerSeat         int           `json:"dealerSeat"`
	BigBlind           int           `json:"bigBlind"`
	LastRaiseIncrement int           `json:"lastRaiseIncrement"`
}

// deckSnapshot is poker.Deck's serializable state (poker.Deck.State /
// poker.FromState), captured so a reloaded in-progress hand deals from
// exactly where the last successful snapshot left off.
type deckSnapshot struct {
	Cards [52]poker.Card `json:"cards"`
	Next  int            `json:"next"`
}

func newRoomSnapshot(r handengine.Room) RoomSnapshot {
	snap := RoomSnapshot{
		ID: r.ID, Name: r.Name, Creator: r.Creator,
		SeatLimit: r.SeatLimit, MinBet: r.MinBet, MaxBet: r.MaxBet,
		Status: string(r.Status), Seats: r.Seats, DealerCursor: r.DealerCursor,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.Hand != nil {
		snap.Hand = &handSnapshot{
			Phase:              string(r.Hand.Phase),
			Community:          r.Hand.Community,
			Pot:                r.Hand.Pot,
			CurrentBet:         r.Hand.CurrentBet,
			LastAggressor:      r.Hand.LastAggressor,
			CurrentTurn:        r.Hand.CurrentTurn,
			DealerSeat:         r.Hand.DealerSeat,
			BigBlind:           r.Hand.BigBlind,
			LastRaiseIncrement: r.Hand.LastRaiseIncrement,
		}
		if r.Hand.Deck != nil {
			cards, next := r.Hand.Deck.State()
			snap.Hand.Deck = &deckSnapshot{Cards: cards, Next: next}
		}
	}
	return snap
}

// toRoom is newRoomSnapshot's inverse, used both by reloadLastGoodSnapshot
// (§7 persistence-retry exhaustion) and by Registry.Rehydrate (process
// restart recovery).
func (snap RoomSnapshot) toRoom() handengine.Room {
	r := handengine.Room{
		ID: snap.ID, Name: snap.Name, Creator: snap.Creator,
		SeatLimit: snap.SeatLimit, MinBet: snap.MinBet, MaxBet: snap.MaxBet,
		Status: handengine.Status(snap.Status), Seats: snap.Seats,
		DealerCursor: snap.DealerCursor,
		CreatedAt:    snap.CreatedAt, UpdatedAt: snap.UpdatedAt,
	}
	if snap.Hand != nil {
		h := &handengine.Hand{
			Phase:              handengine.Phase(snap.Hand.Phase),
			Community:          snap.Hand.Community,
			Pot:                snap.Hand.Pot,
			CurrentBet:         snap.Hand.CurrentBet,
			LastAggressor:      snap.Hand.LastAggressor,
			CurrentTurn:        snap.Hand.CurrentTurn,
			DealerSeat:         snap.Hand.DealerSeat,
			BigBlind:           snap.Hand.BigBlind,
			LastRaiseIncrement: snap.Hand.LastRaiseIncrement,
		}
		if snap.Hand.Deck != nil {
			h.Deck = poker.FromState(snap.Hand.Deck.Cards, snap.Hand.Deck.Next)
		}
		r.Hand = h
	}
	return r
}

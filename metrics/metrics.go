// Package metrics implements the supplemented per-room counters (§SPEC_FULL
// "Metrics counters"): hand-start, action, and timeout counts.
//
// Grounded on BotPool's in-memory timeoutCounter/handStartTime fields in
// internal/server/pool.go, generalized from one pool-wide pair of counters
// into a small per-room set. No third-party metrics library is wired here:
// nothing in the retrieval pack sets up a push/scrape stack (Prometheus,
// statsd, …) for plain counters, so this stays on the standard library's
// atomic package, as documented in DESIGN.md.
package metrics

import (
	"sync/atomic"
	"time"
)

// Room holds one room's lifetime counters. Zero value is ready to use.
type Room struct {
	handsStarted uint64
	actions      uint64
	timeouts     uint64
	startedAt    time.Time
}

// NewRoom returns a Room counter set stamped with the given creation time.
func NewRoom(createdAt time.Time) *Room {
	return &Room{startedAt: createdAt}
}

// HandStarted increments the hand-start counter.
func (r *Room) HandStarted() { atomic.AddUint64(&r.handsStarted, 1) }

// Action increments the action counter.
func (r *Room) Action() { atomic.AddUint64(&r.actions, 1) }

// Timeout increments the timeout counter.
func (r *Room) Timeout() { atomic.AddUint64(&r.timeouts, 1) }

// Snapshot is a point-in-time read of a Room's counters.
type Snapshot struct {
	HandsStarted uint64
	Actions      uint64
	Timeouts     uint64
	Uptime       time.Duration
}

// Snapshot reads the current counter values without blocking any writer.
func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		HandsStarted: atomic.LoadUint64(&r.handsStarted),
		Actions:      atomic.LoadUint64(&r.actions),
		Timeouts:     atomic.LoadUint64(&r.timeouts),
		Uptime:       time.Since(r.startedAt),
	}
}

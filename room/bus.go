package room

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/holdemroom/handengine"
)

// Push delivers one View to a subscriber. Implementations must not block
// the bus — the bus itself enforces that with a bounded, droppable queue
// per subscriber (§4.E "a slow subscriber must not slow the coordinator").
type Push func(View)

type subscriber struct {
	playerID string
	push     Push
	queue    chan handengine.Room
	done     chan struct{}
}

// Bus fans room updates out to per-room subscribers, redacting hole cards
// per viewer on every publish. Generalized from the teacher's
// server.TableStateFromGame single-viewer redaction (message.go's
// includeHoleCards := i == ts.ActingPlayerIdx) into true per-subscriber
// identity-based redaction, and from its single synchronous send per
// connection into a bounded, drop-oldest queue so one stalled subscriber
// can never stall publish.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber // keyed by subscription id
	logger *log.Logger
}

// NewBus constructs an empty Bus.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{subs: make(map[string]*subscriber), logger: logger}
}

// Subscribe registers push for playerID and returns a subscription id used
// to Unsubscribe. The subscriber's queue holds up to 8 pending snapshots;
// once full, the oldest queued snapshot is dropped in favor of the new
// one — subscribers only ever need the latest view, not every intermediate
// one.
func (b *Bus) Subscribe(subID, playerID string, push Push) {
	sub := &subscriber{
		playerID: playerID,
		push:     push,
		queue:    make(chan handengine.Room, 8),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[subID] = sub
	b.mu.Unlock()

	go sub.run()
}

func (s *subscriber) run() {
	for {
		select {
		case r := <-s.queue:
			s.push(BuildView(r, s.playerID))
		case <-s.done:
			return
		}
	}
}

// Unsubscribe removes subID and stops its delivery goroutine.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subs[subID]
	delete(b.subs, subID)
	b.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Publish fans out room to every current subscriber. It never blocks: a
// full queue means the subscriber is behind, so the oldest pending
// snapshot is dropped to make room for the latest one.
func (b *Bus) Publish(r handengine.Room) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		select {
		case sub.queue <- r:
		default:
			select {
			case <-sub.queue:
			default:
			}
			select {
			case sub.queue <- r:
			default:
				if b.logger != nil {
					b.logger.Warn("dropping snapshot for slow subscriber", "sub", id)
				}
			}
		}
	}
}

// Count reports the number of active subscribers, for metrics.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

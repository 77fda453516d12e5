// Package eventbus implements the Event Bus (C9): single-producer,
// multi-consumer distribution of ChannelStatesModified and
// TestStatusUpdated, delivered on the subscriber's own dispatch loop with
// no back-pressure — a dropped event is acceptable because recomputation
// is idempotent. No pub/sub library appears anywhere in
// the retrieved pack, so this is a justified stdlib-only package built on
// buffered channels, following the general single-producer/multi-consumer
// channel-fan-out idiom rather than any one teacher file.
package eventbus

import (
	"sync"

	"fatorch/internal/events"
)

// subscriberBuffer bounds how many undelivered events a slow subscriber
// can accumulate before new ones are dropped for it specifically — the
// "no back-pressure" policy applied per-subscriber rather than globally.
const subscriberBuffer = 64

// Bus is a coarse pub/sub bus. It is safe for concurrent use; Publish may
// be called from any goroutine, matching the orchestrator's
// single-producer-per-mutation (C1) but multi-reader (UI + aggregates)
// shape.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan events.Event
	next int
}

func New() *Bus {
	return &Bus{subs: make(map[int]chan events.Event)}
}

// Publish is Publisher.Publish (internal/events.Publisher) so
// internal/channelstate can hold a Bus as its publisher without this
// package importing channelstate.
func (b *Bus) Publish(ev events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than block the producer.
			// Coalescable events may be dropped under backpressure.
		}
	}
}

// Subscribe registers a new listener and returns its event channel plus
// an unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan events.Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++

	ch := make(chan events.Event, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}

	return ch, unsubscribe
}

package eventbus

import (
	"context"

	"fatorch/internal/events"
)

// Dispatcher models the single "UI thread" that events
// being delivered on: it drains whatever is pending on a subscription and
// invokes handler for each, coalescing naturally since
// ChannelStatesModified carries a batch of IDs and repeated calls are
// idempotent to recompute against.
type Dispatcher struct {
	events  <-chan events.Event
	handler func(events.Event)
}

// NewDispatcher wires a subscription channel to a handler. Call Tick
// periodically (e.g. on a UI frame callback or ticker) to deliver
// whatever arrived since the last tick.
func NewDispatcher(ch <-chan events.Event, handler func(events.Event)) *Dispatcher {
	return &Dispatcher{events: ch, handler: handler}
}

// Tick delivers every event currently buffered, without blocking for
// more. It returns the number of events delivered.
func (d *Dispatcher) Tick() int {
	n := 0

	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				return n
			}

			d.handler(ev)
			n++
		default:
			return n
		}
	}
}

// Run delivers events as they arrive until ctx is cancelled or the
// subscription channel closes. Useful for a headless consumer (e.g. the
// record store's save-on-terminal-status listener) that doesn't have a
// UI frame tick to hang off of.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}

			d.handler(ev)
		}
	}
}

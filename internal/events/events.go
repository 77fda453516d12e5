// Package events defines the two event kinds the orchestrator's Channel
// State Manager (C1) emits and the Event Bus (C9) distributes, per
// the event bus. It is a separate, dependency-free package so both
// internal/channelstate (the producer) and internal/eventbus (the
// distributor) can share the same vocabulary without importing each
// other.
package events

// ChannelStatesModified is a coarse signal that one or more channels
// changed; UI-style subscribers refresh the affected rows and recompute
// aggregates. It is coalescable: receiving it twice for overlapping IDs
// is harmless because recomputation is idempotent.
type ChannelStatesModified struct {
	IDs []string
}

// TestStatusUpdated fires after any manual sub-item mutation so
// subscribers can recompute action-button disabled state.
type TestStatusUpdated struct {
	ChannelID string
}

// Event is the union of event kinds published on the bus.
type Event interface {
	isEvent()
}

func (ChannelStatesModified) isEvent() {}
func (TestStatusUpdated) isEvent()     {}

// Publisher is the narrow seam internal/channelstate depends on so it
// never needs to import internal/eventbus directly.
type Publisher interface {
	Publish(Event)
}

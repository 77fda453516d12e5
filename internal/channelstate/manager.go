// Package channelstate implements the Channel State Manager (C1): the
// sole authority for mutating a Channel. Every other component calls into
// Manager rather than touching model.Channel fields directly, per
// the "single authority" requirement for channel state. Grounded on
// internal/ticket/ticket.go's status-transition helpers (generalized from
// a fixed ticket status enum to the full Channel lifecycle) and
// internal/ticket/lock.go's bounded-wait locking pattern (mechanism
// replaced; see lock.go in this package).
package channelstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fatorch/internal/events"
	"fatorch/internal/model"
)

type entry struct {
	lock    chanLock
	channel *model.Channel
}

// Manager owns every Channel in the orchestrator and enforces legal
// transitions and invariants. It is safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	publisher   events.Publisher
	lockTimeout time.Duration
}

// New creates an empty Manager. pub may be nil, in which case events are
// silently dropped (useful in tests that only care about the returned
// post-image).
func New(pub events.Publisher) *Manager {
	return &Manager{
		entries:     make(map[string]*entry),
		publisher:   pub,
		lockTimeout: DefaultLockTimeout,
	}
}

// Get returns a read-only snapshot of a channel.
func (m *Manager) Get(id string) (*model.Channel, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}

	e.lock <- struct{}{}
	snap := e.channel.Clone()
	<-e.lock

	return snap, nil
}

// All returns a snapshot of every channel currently known to the manager.
func (m *Manager) All() []*model.Channel {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*model.Channel, 0, len(entries))

	for _, e := range entries {
		e.lock <- struct{}{}
		out = append(out, e.channel.Clone())
		<-e.lock
	}

	return out
}

func (m *Manager) publish(evs ...events.Event) {
	if m.publisher == nil {
		return
	}

	for _, ev := range evs {
		m.publisher.Publish(ev)
	}
}

// withChannel locks the channel identified by id, runs fn against the
// live (non-cloned) channel, and on success publishes a
// ChannelStatesModified event and returns a clone of the post-image.
// fn returning an error leaves the stored channel untouched by
// convention: mutating operations only assign fields after every
// precondition check has passed.
func (m *Manager) withChannel(ctx context.Context, id string, fn func(c *model.Channel) error) (*model.Channel, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}

	release, err := e.lock.acquire(ctx, id, m.lockTimeout)
	if err != nil {
		return nil, err
	}

	defer release()

	if err := fn(e.channel); err != nil {
		return nil, err
	}

	snap := e.channel.Clone()

	m.publish(events.ChannelStatesModified{IDs: []string{id}})

	return snap, nil
}

// InitializeFromImport populates a new Channel from a raw import record,
// marking unreachable sub-items as skipped per invariants 4–6. It is the
// only way a channel enters the manager.
func (m *Manager) InitializeFromImport(raw RawChannel) (*model.Channel, error) {
	c := &model.Channel{
		ID:              raw.ID,
		TestID:          raw.TestID,
		Tag:             raw.Tag,
		Description:     raw.Description,
		ModuleType:      raw.ModuleType,
		WireSystem:      raw.WireSystem,
		TargetAddress:   raw.TargetAddress,
		TestAddress:     raw.TestAddress,
		SLLSetpointAddr: raw.SLLSetpointAddr,
		SLSetpointAddr:  raw.SLSetpointAddr,
		SHSetpointAddr:  raw.SHSetpointAddr,
		SHHSetpointAddr: raw.SHHSetpointAddr,
		MaintenanceAddr: raw.MaintenanceAddr,
		RangeLow:        raw.RangeLow,
		RangeHigh:       raw.RangeHigh,
		LLL:             raw.LLL,
		LL:              raw.LL,
		H:               raw.H,
		HH:              raw.HH,
		BatchID:         raw.BatchID,
		TestTag:         raw.TestTag,
		HardPointResult: model.HardPointNotTested,
		OverallStatus:   model.OverallNotTested,
	}

	c.SubItems = seedSubItems(c)

	m.mu.Lock()
	m.entries[c.ID] = &entry{lock: newChanLock(), channel: c}
	m.mu.Unlock()

	m.publish(events.ChannelStatesModified{IDs: []string{c.ID}})

	return c.Clone(), nil
}

// PrepareForWiringConfirmation requires hard_point_result ∈
// {not_tested, failed} and sets it to waiting.
func (m *Manager) PrepareForWiringConfirmation(ctx context.Context, id string) (*model.Channel, error) {
	return m.withChannel(ctx, id, func(c *model.Channel) error {
		if c.HardPointResult != model.HardPointNotTested && c.HardPointResult != model.HardPointFailed {
			return fmt.Errorf("%w: %s: hard_point_result=%s", ErrIllegalTransition, id, c.HardPointResult)
		}

		c.HardPointResult = model.HardPointWaiting
		c.OverallStatus = recomputeOverallStatus(c)

		return nil
	})
}

// BeginHardPointTest requires waiting, sets in_progress, and stamps
// start_time exactly once (invariant 2).
func (m *Manager) BeginHardPointTest(ctx context.Context, id string) (*model.Channel, error) {
	return m.withChannel(ctx, id, func(c *model.Channel) error {
		if c.HardPointResult != model.HardPointWaiting {
			return fmt.Errorf("%w: %s: hard_point_result=%s", ErrIllegalTransition, id, c.HardPointResult)
		}

		c.HardPointResult = model.HardPointInProgress
		c.OverallStatus = recomputeOverallStatus(c)

		if c.StartTime == nil {
			now := time.Now()
			c.StartTime = &now
		}

		return nil
	})
}

// RecordHardPointOutcome requires in_progress, sets the result, and — if
// the verdict passed and every applicable manual sub-item is already
// done — stamps final_time and recomputes overall_status (invariant 3).
func (m *Manager) RecordHardPointOutcome(ctx context.Context, id string, verdict model.HardPointResult, detail string) (*model.Channel, error) {
	if verdict != model.HardPointPassed && verdict != model.HardPointFailed {
		return nil, fmt.Errorf("%w: verdict must be passed or failed, got %s", ErrIllegalTransition, verdict)
	}

	return m.withChannel(ctx, id, func(c *model.Channel) error {
		if c.HardPointResult != model.HardPointInProgress {
			return fmt.Errorf("%w: %s: hard_point_result=%s", ErrIllegalTransition, id, c.HardPointResult)
		}

		c.HardPointResult = verdict
		c.HardPointErrorDetail = detail
		c.OverallStatus = recomputeOverallStatus(c)

		if c.OverallStatus == model.OverallPassed || c.OverallStatus == model.OverallFailed {
			if c.FinalTime == nil {
				now := time.Now()
				c.FinalTime = &now
			}
		}

		return nil
	})
}

// BeginManualTest resets any manual sub-item currently failed back to
// not_tested for retry, and rejects if the channel requires a passing
// hard-point test first and hasn't gotten one. Invariant 7 ("a channel in
// in_progress cannot begin a manual test") is checked unconditionally,
// including for "_NONE" types, which bypass the passed-first requirement
// but are still scheduled through the hard-point recipe and so can still
// be in_progress.
func (m *Manager) BeginManualTest(ctx context.Context, id string) (*model.Channel, error) {
	return m.withChannel(ctx, id, func(c *model.Channel) error {
		if c.HardPointResult == model.HardPointInProgress {
			return fmt.Errorf("%w: %s", ErrChannelBusy, id)
		}

		if c.RequiresHardPointFirst() && c.HardPointResult != model.HardPointPassed {
			return fmt.Errorf("%w: %s", ErrHardPointNotPassed, id)
		}

		for item, status := range c.SubItems {
			if status == model.SubItemFailed {
				c.SubItems[item] = model.SubItemNotTested
			}
		}

		c.OverallStatus = recomputeOverallStatus(c)

		return nil
	})
}

// SetManualSubOutcome validates item applicability and updates its
// status, recomputing overall_status afterward. It also publishes
// TestStatusUpdated so action buttons can recompute disabled state.
func (m *Manager) SetManualSubOutcome(ctx context.Context, id string, item model.SubItem, status model.SubItemStatus, note string) (*model.Channel, error) {
	if status != model.SubItemPassed && status != model.SubItemFailed {
		return nil, fmt.Errorf("%w: status must be passed or failed, got %s", ErrIllegalTransition, status)
	}

	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}

	release, err := e.lock.acquire(ctx, id, m.lockTimeout)
	if err != nil {
		return nil, err
	}

	applyErr := func() error {
		c := e.channel

		if c.HardPointResult == model.HardPointInProgress {
			return fmt.Errorf("%w: %s", ErrChannelBusy, id)
		}

		current, known := c.SubItems[item]
		if !known {
			return fmt.Errorf("%w: %s", ErrUnknownSubItem, item)
		}

		if current == model.SubItemSkipped {
			return fmt.Errorf("%w: %s is not applicable", ErrNotApplicable, item)
		}

		c.SubItems[item] = status
		if note != "" {
			c.SubItemNotes[item] = note
		}

		c.OverallStatus = recomputeOverallStatus(c)

		if c.OverallStatus == model.OverallPassed || c.OverallStatus == model.OverallFailed {
			if c.FinalTime == nil {
				now := time.Now()
				c.FinalTime = &now
			}
		}

		return nil
	}()

	if applyErr != nil {
		release()

		return nil, applyErr
	}

	snap := e.channel.Clone()
	release()

	m.publish(events.ChannelStatesModified{IDs: []string{id}}, events.TestStatusUpdated{ChannelID: id})

	return snap, nil
}

// ResetForRetest clears the hard-point outcome and dependent manual
// outcomes, restoring the channel to waiting.
func (m *Manager) ResetForRetest(ctx context.Context, id string) (*model.Channel, error) {
	return m.withChannel(ctx, id, func(c *model.Channel) error {
		if c.HardPointResult == model.HardPointInProgress {
			return fmt.Errorf("%w: %s", ErrChannelBusy, id)
		}

		c.HardPointResult = model.HardPointWaiting
		c.HardPointErrorDetail = ""
		c.V0, c.V25, c.V50, c.V75, c.V100 = 0, 0, 0, 0, 0
		c.FinalTime = nil
		c.SubItems = seedSubItems(c)
		c.OverallStatus = recomputeOverallStatus(c)

		return nil
	})
}

// MarkAsSkipped is the bulk-skip path used by the Batch & Wiring Gate
// (C7): clears timers, sets every sub-item to skipped, and forces
// overall_status to skipped directly rather than through
// recomputeOverallStatus, which has no "skipped" outcome of its own.
func (m *Manager) MarkAsSkipped(ctx context.Context, id string, reason string, timestamp time.Time) (*model.Channel, error) {
	return m.withChannel(ctx, id, func(c *model.Channel) error {
		c.HardPointResult = model.HardPointFailed
		c.HardPointErrorDetail = reason
		c.StartTime = nil
		c.FinalTime = &timestamp

		for item := range c.SubItems {
			c.SubItems[item] = model.SubItemSkipped
		}

		c.OverallStatus = model.OverallSkipped

		return nil
	})
}

// RecordCancelledHardPoint is the deterministic outcome for a scheduler
// cancellation mid-sweep: it always resolves
// to failed with a fixed reason, regardless of which checkpoint was in
// flight.
func (m *Manager) RecordCancelledHardPoint(ctx context.Context, id string) (*model.Channel, error) {
	c, err := m.RecordHardPointOutcome(ctx, id, model.HardPointFailed, "cancelled")
	if err != nil && errors.Is(err, ErrIllegalTransition) {
		// Already resolved by a racing outcome report; not an error for
		// the caller, which only wants cancellation reflected eventually.
		return m.Get(id)
	}

	return c, err
}

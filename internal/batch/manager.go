// Package batch implements the Batch & Wiring Gate (C7): batch lifecycle
// bookkeeping and the bulk confirm-wiring / skip-modules operations that
// move a batch's channels into the Channel State Manager's waiting state
// (or bulk-skip them). Grounded on
// internal/channelstate/manager.go's own locked-map-of-entries shape
// (the same mutual-exclusion pattern, scaled down from per-channel locks
// to a single mutex over all batches since batch-level operations are infrequent and
// span many channels at once) and for the lifecycle
// semantics.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fatorch/internal/channelstate"
	"fatorch/internal/model"
)

// Manager owns every Batch and the bulk operations over its channels. It
// delegates all per-channel mutation to channelstate.Manager, which
// remains the sole authority for a Channel's fields.
type Manager struct {
	chMgr *channelstate.Manager

	mu      sync.Mutex
	batches map[string]*model.Batch
}

func New(chMgr *channelstate.Manager) *Manager {
	return &Manager{chMgr: chMgr, batches: make(map[string]*model.Batch)}
}

// CreateBatch registers an empty batch. Channels are attached to it by
// AddChannels as they're imported and allocated (C2).
func (m *Manager) CreateBatch(name string, stationNames []string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchAlreadyExists, name)
	}

	b := &model.Batch{
		Name:         name,
		Status:       model.BatchNotStarted,
		StationNames: append([]string(nil), stationNames...),
		CreatedAt:    time.Now(),
	}

	m.batches[name] = b

	return cloneBatch(b), nil
}

// AddChannels appends channelIDs to a batch's membership list, used by the
// import/allocation step once a raw channel has been assigned a batch_id.
func (m *Manager) AddChannels(name string, channelIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}

	b.ChannelIDs = append(b.ChannelIDs, channelIDs...)

	return nil
}

// RemoveChannels detaches channelIDs from a batch's membership list, used
// by the `clear_allocation` operator command to undo a mistaken allocation
// before wiring is confirmed. Rejects once the batch is testing, same as
// ConfirmWiring/SkipModules — membership must be stable once a test run
// owns the channel set.
func (m *Manager) RemoveChannels(name string, channelIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}

	if b.Status == model.BatchTesting {
		return fmt.Errorf("%w: %s", ErrBatchBusy, name)
	}

	remove := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		remove[id] = true
	}

	kept := b.ChannelIDs[:0:0]

	for _, id := range b.ChannelIDs {
		if !remove[id] {
			kept = append(kept, id)
		}
	}

	b.ChannelIDs = kept

	return nil
}

// Get returns a snapshot of a batch.
func (m *Manager) Get(name string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}

	return cloneBatch(b), nil
}

// List returns a snapshot of every known batch.
func (m *Manager) List() []*model.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, cloneBatch(b))
	}

	return out
}

// Channels returns the live channelstate snapshots belonging to a batch.
func (m *Manager) Channels(name string) ([]*model.Channel, error) {
	b, err := m.Get(name)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Channel, 0, len(b.ChannelIDs))

	for _, id := range b.ChannelIDs {
		c, err := m.chMgr.Get(id)
		if err != nil {
			continue // channel may have been deleted independently; skip.
		}

		out = append(out, c)
	}

	return out, nil
}

// Counts derives pass/fail/waiting/total counts for a batch's current
// channel set, for the UI aggregate view.
func (m *Manager) Counts(name string) (model.Counts, error) {
	channels, err := m.Channels(name)
	if err != nil {
		return model.Counts{}, err
	}

	return model.DeriveCounts(channels), nil
}

// ConfirmWiring moves every not_tested or failed channel in the batch to
// waiting (via channelstate.PrepareForWiringConfirmation) and flips the
// batch to wiring_confirmed. Rejects if the batch is already testing,
// per batch.
func (m *Manager) ConfirmWiring(ctx context.Context, name string) (*model.Batch, error) {
	b, err := m.requireNotTesting(name)
	if err != nil {
		return nil, err
	}

	for _, id := range b.ChannelIDs {
		c, err := m.chMgr.Get(id)
		if err != nil {
			continue
		}

		if c.OverallStatus == model.OverallSkipped {
			continue // bulk-skipped channel: confirm_wiring must not revive it.
		}

		if c.HardPointResult != model.HardPointNotTested && c.HardPointResult != model.HardPointFailed {
			continue // already waiting, in_progress, or passed: nothing to prepare.
		}

		if _, err := m.chMgr.PrepareForWiringConfirmation(ctx, id); err != nil {
			return nil, fmt.Errorf("preparing channel %s: %w", id, err)
		}
	}

	return m.setStatus(name, model.BatchWiringConfirmed)
}

// SkipModules bulk-skips every channel in the batch whose ModuleType is in
// types, recording reason on each via channelstate.MarkAsSkipped, per
// the "skip modules" operation (used when a module is known
// absent from the physical cabinet).
func (m *Manager) SkipModules(ctx context.Context, name string, types []model.ModuleType, reason string) (*model.Batch, error) {
	b, err := m.Get(name)
	if err != nil {
		return nil, err
	}

	wanted := make(map[model.ModuleType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	now := time.Now()

	for _, id := range b.ChannelIDs {
		c, err := m.chMgr.Get(id)
		if err != nil {
			continue
		}

		if !wanted[c.ModuleType] {
			continue
		}

		if _, err := m.chMgr.MarkAsSkipped(ctx, id, reason, now); err != nil {
			return nil, fmt.Errorf("skipping channel %s: %w", id, err)
		}
	}

	return cloneBatch(b), nil
}

// StartTesting flips a wiring_confirmed batch to testing, the state the
// Scheduler (C6) requires before it will run a batch's channels.
func (m *Manager) StartTesting(name string) (*model.Batch, error) {
	m.mu.Lock()
	b, ok := m.batches[name]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}

	if b.Status != model.BatchWiringConfirmed {
		return nil, fmt.Errorf("%w: %s: status=%s", ErrIllegalTransition, name, b.Status)
	}

	return m.setStatus(name, model.BatchTesting)
}

// Complete flips a batch to completed once every channel has reached a
// terminal overall_status. It is safe to call repeatedly; it's a no-op
// once already completed and returns an error if any channel is still
// outstanding.
func (m *Manager) Complete(name string) (*model.Batch, error) {
	channels, err := m.Channels(name)
	if err != nil {
		return nil, err
	}

	for _, c := range channels {
		if !c.OverallStatus.IsTerminal() {
			return nil, fmt.Errorf("%w: %s: channel %s is not yet terminal (%s)", ErrBatchBusy, name, c.ID, c.OverallStatus)
		}
	}

	return m.setStatus(name, model.BatchCompleted)
}

func (m *Manager) requireNotTesting(name string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}

	if b.Status == model.BatchTesting {
		return nil, fmt.Errorf("%w: %s", ErrBatchBusy, name)
	}

	return cloneBatch(b), nil
}

func (m *Manager) setStatus(name string, status model.BatchStatus) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}

	b.Status = status

	return cloneBatch(b), nil
}

func cloneBatch(b *model.Batch) *model.Batch {
	cp := *b
	cp.ChannelIDs = append([]string(nil), b.ChannelIDs...)
	cp.StationNames = append([]string(nil), b.StationNames...)

	return &cp
}

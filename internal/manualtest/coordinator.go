package manualtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fatorch/internal/channelstate"
	"fatorch/internal/model"
	"fatorch/internal/plcgateway"
)

// MonitorInterval is the live-polling cadence for start_monitoring, per
// the documented monitoring cadence ("periodically (~500ms)").
const MonitorInterval = 500 * time.Millisecond

// AlarmMargin is the ± offset applied to an alarm threshold when sending
// a test stimulus, per the documented alarm behavior ("send alarm (threshold ± 5%
// margin)").
const AlarmMargin = 0.05

// Saver is the narrow seam into the Record Store (C8): once a channel's
// overall_status lands on a terminal value, the coordinator queues it for
// a save rather than requiring the operator to do so explicitly.
type Saver interface {
	SaveQueued(channel *model.Channel)
}

// Coordinator drives manual sub-tests for one channel at a time. It holds
// at most one open Session, consistent with the design preference for
// rejection of a global-singleton current-channel: the Session is owned
// here, not in a shared global.
type Coordinator struct {
	mgr      *channelstate.Manager
	registry *plcgateway.Registry
	saver    Saver

	mu      sync.Mutex
	session *Session
}

// New creates a Coordinator. saver may be nil, in which case completed
// channels are never auto-queued for a save (tests that only care about
// sub-item transitions can omit it).
func New(mgr *channelstate.Manager, registry *plcgateway.Registry, saver Saver) *Coordinator {
	return &Coordinator{mgr: mgr, registry: registry, saver: saver}
}

// Begin opens a manual test session for channelID, requiring the channel
// to have passed hard-point testing first (unless its module type
// bypasses that requirement — see model.Channel.RequiresHardPointFirst).
// Sub-items with missing addresses were already auto-skipped at import
// time (invariants 5–6); Begin re-asserts that via BeginManualTest, which
// also resets any previously failed sub-item for retry.
func (co *Coordinator) Begin(ctx context.Context, channelID string) (*Session, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.session != nil {
		return nil, fmt.Errorf("%w: channel %s", ErrSessionInProgress, co.session.ChannelID)
	}

	if _, err := co.mgr.BeginManualTest(ctx, channelID); err != nil {
		return nil, err
	}

	s := newSession(channelID)
	co.session = s

	return s, nil
}

// Active returns the currently open session, if any.
func (co *Coordinator) Active() *Session {
	co.mu.Lock()
	defer co.mu.Unlock()

	return co.session
}

// Close stops monitoring (idempotent) and releases the session slot.
func (co *Coordinator) Close(s *Session) {
	s.mu.Lock()
	cancel := s.monitorCancel
	s.monitorCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	co.mu.Lock()
	if co.session == s {
		co.session = nil
	}
	co.mu.Unlock()
}

// addressKeyMap maps a monitored address to the display key
// names it under.
type addressKeyMap map[string]string

// StartMonitoring begins polling the addresses in keys every
// MonitorInterval and recording formatted values on s, until ctx is
// cancelled or StopMonitoring is called. Calling it twice on an
// already-monitoring session is a no-op past the first cancel/restart;
// stop_monitoring is idempotent.
func (co *Coordinator) StartMonitoring(ctx context.Context, s *Session, gw plcgateway.Gateway, keys addressKeyMap, analogKeys map[string]bool) {
	s.mu.Lock()
	if s.monitorCancel != nil {
		s.mu.Unlock()

		return
	}

	monCtx, cancel := context.WithCancel(ctx)
	s.monitorCancel = cancel
	done := make(chan struct{})
	s.monitorDone = done
	s.mu.Unlock()

	go co.monitorLoop(monCtx, done, s, gw, keys, analogKeys)
}

func (co *Coordinator) monitorLoop(ctx context.Context, done chan struct{}, s *Session, gw plcgateway.Gateway, keys addressKeyMap, analogKeys map[string]bool) {
	defer close(done)

	ticker := time.NewTicker(MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for addr, key := range keys {
				formatted, ok := readFormatted(ctx, gw, addr, analogKeys[key])
				if !ok {
					s.setValue(key, "reading…")

					continue
				}

				s.setValue(key, formatted)
			}
		}
	}
}

// readFormatted performs one monitoring read. Transport errors surface as
// a placeholder rather than tearing down the session, per the
// "transient transport errors during monitoring produce a 'reading…'
// placeholder".
func readFormatted(ctx context.Context, gw plcgateway.Gateway, addr string, analog bool) (string, bool) {
	if analog {
		v, err := gw.ReadAnalog(ctx, addr)
		if err != nil {
			return "", false
		}

		return fmt.Sprintf("%.2f", v), true
	}

	v, err := gw.ReadDigital(ctx, addr)
	if err != nil {
		return "", false
	}

	return fmt.Sprintf("%t", v), true
}

// StopMonitoring idempotently stops the poller and releases PLC gateway
// usage (cancellation during monitoring
// immediately stops the poller).
func (co *Coordinator) StopMonitoring(s *Session) {
	s.mu.Lock()
	cancel := s.monitorCancel
	s.monitorCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ConfirmSubItem commits a "confirm pass" for item. It is idempotent when
// the item is already passed or skipped ("button disabled"
// for those states means a repeat call is a harmless no-op, not an
// error).
func (co *Coordinator) ConfirmSubItem(ctx context.Context, s *Session, item model.SubItem) (*model.Channel, error) {
	current, err := co.mgr.Get(s.ChannelID)
	if err != nil {
		return nil, err
	}

	if status, ok := current.SubItems[item]; ok && (status == model.SubItemPassed || status == model.SubItemSkipped) {
		return current, nil
	}

	if item == model.SubItemShowValue && current.ModuleType.Base() == model.ModuleAO && !s.allCaptured() {
		return nil, ErrCaptureIncomplete
	}

	c, err := co.mgr.SetManualSubOutcome(ctx, s.ChannelID, item, model.SubItemPassed, "")
	if err != nil {
		return nil, err
	}

	s.checkCompletionEdge(c)
	co.saveIfTerminal(c)

	return c, nil
}

// FailSubItem commits a "mark failed" for item, carrying the operator's
// note. Re-enterable: a failed item may be retried via BeginManualTest
// (called again) or ConfirmSubItem after the operator fixes the issue.
func (co *Coordinator) FailSubItem(ctx context.Context, s *Session, item model.SubItem, note string) (*model.Channel, error) {
	c, err := co.mgr.SetManualSubOutcome(ctx, s.ChannelID, item, model.SubItemFailed, note)
	if err != nil {
		return nil, err
	}

	s.checkCompletionEdge(c)
	co.saveIfTerminal(c)

	return c, nil
}

// saveIfTerminal queues a save once overall_status settles on a terminal
// value, so the operator never has to remember to export a finished
// channel manually.
func (co *Coordinator) saveIfTerminal(c *model.Channel) {
	if co.saver != nil && c.OverallStatus.IsTerminal() {
		co.saver.SaveQueued(c)
	}
}

// PollCompletion reports whether this session has just crossed the
// false→true "all sub-items done" edge since the last call, without
// requiring a sub-item commit to trigger the check (useful right after
// Begin, when auto-skip alone may already satisfy completion for an
// all-reserved channel).
func (co *Coordinator) PollCompletion(s *Session) (bool, error) {
	c, err := co.mgr.Get(s.ChannelID)
	if err != nil {
		return false, err
	}

	return s.checkCompletionEdge(c), nil
}

// Package manualtest implements the Manual Test Coordinator (C5):
// per-channel scripted manual sub-tests driven on operator command, with
// live PLC monitoring and edge-triggered completion. Grounded on
// internal/cli/edit.go's session lifecycle (--start/--apply mutual
// exclusion, a staleness timeout, an explicit on-disk handle) generalized
// from a single edit-in-progress file to a ManualTestSession value per
// a deliberate choice to reshape this as explicit session handles rather than no
// hidden per-widget lifecycle").
package manualtest

import (
	"sync"
	"time"

	"fatorch/internal/model"
)

// Session is the explicit, scoped handle for one channel's manual test
// pass. Only one Session may be open at a time (the coordinator "operates
// on a single channel at a time, UI-bounded); closing it
// stops monitoring and releases the slot.
type Session struct {
	ChannelID string
	StartedAt time.Time

	mu              sync.Mutex
	monitorCancel   func()
	monitorDone     chan struct{}
	values          map[string]string
	aoCaptured      map[float64]bool
	aoCaptureValues map[float64]float64
	lastAllDone     bool
	completedOnce   bool
}

func newSession(channelID string) *Session {
	return &Session{
		ChannelID:       channelID,
		StartedAt:       time.Now(),
		values:          make(map[string]string),
		aoCaptured:      make(map[float64]bool),
		aoCaptureValues: make(map[float64]float64),
	}
}

// CurrentValues returns a snapshot of the last monitored readings, keyed
// as described for live monitoring ("current_value|current_output|
// current_state", "sll|sl|sh|shh_setpoint").
func (s *Session) CurrentValues() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}

	return out
}

func (s *Session) setValue(key, formatted string) {
	s.mu.Lock()
	s.values[key] = formatted
	s.mu.Unlock()
}

// captureCheckpoint records one AO 5-point capture. allCaptured reports
// whether all five of 0/25/50/75/100 have been captured, gating
// show_value confirmation.
func (s *Session) captureCheckpoint(percent, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aoCaptured[percent] = true
	s.aoCaptureValues[percent] = value
}

func (s *Session) allCaptured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []float64{0, 25, 50, 75, 100} {
		if !s.aoCaptured[p] {
			return false
		}
	}

	return true
}

// checkCompletionEdge reports whether this call is the false→true
// transition of "all applicable sub-items done", firing TestCompleted at
// most once per session.
func (s *Session) checkCompletionEdge(c *model.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := allApplicableDone(c)

	wasDone := s.lastAllDone
	s.lastAllDone = done

	if done && !wasDone && !s.completedOnce {
		s.completedOnce = true

		return true
	}

	return false
}

func allApplicableDone(c *model.Channel) bool {
	for _, status := range c.SubItems {
		if status != model.SubItemPassed && status != model.SubItemSkipped {
			return false
		}
	}

	return true
}

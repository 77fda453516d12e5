// Package oracle is an in-memory model of the Channel state machine
// (internal/channelstate), used as a cross-check in behavior tests: if the
// real Manager disagrees with this model on any ErrCode or observable
// field, the implementation is wrong, not the model. Adapted from
// internal/testutil/spec's in-memory ticket-lifecycle model, generalized
// from ticket Status transitions to the Channel's hard_point_result /
// overall_status / sub-item lifecycle.
//
// Design principles, carried over from the model this is adapted from:
// simple over performant, explicit over clever, no dependencies beyond the
// standard library. Panics indicate a bug in the model itself; errors
// indicate a transition the real implementation must also reject.
package oracle

import "fmt"

// ErrCode is a stable error code for programmatic error handling, mirrored
// against internal/channelstate's sentinel errors by name rather than by
// wrapped identity, since this package never imports channelstate.
type ErrCode string

const (
	ErrChannelNotFound    ErrCode = "channel_not_found"
	ErrChannelExists      ErrCode = "channel_already_exists"
	ErrIllegalTransition  ErrCode = "illegal_transition"
	ErrNotApplicable      ErrCode = "not_applicable"
	ErrHardPointNotPassed ErrCode = "hard_point_not_passed"
	ErrUnknownSubItem     ErrCode = "unknown_sub_item"
)

// Error is a structured error with a stable code, the same shape
// internal/testutil/spec's *Error uses.
type Error struct {
	Code ErrCode
	ID   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("code=%s id=%q", e.Code, e.ID)
}

func newErr(code ErrCode, id string) *Error { return &Error{Code: code, ID: id} }

// HardPointResult mirrors model.HardPointResult without importing it, so
// this package stays a freestanding model of the state machine's shape
// rather than a thin wrapper around the real types.
type HardPointResult string

const (
	HPNotTested  HardPointResult = "not_tested"
	HPWaiting    HardPointResult = "waiting"
	HPInProgress HardPointResult = "in_progress"
	HPPassed     HardPointResult = "passed"
	HPFailed     HardPointResult = "failed"
)

// SubItemStatus mirrors model.SubItemStatus.
type SubItemStatus string

const (
	SubNotTested SubItemStatus = "not_tested"
	SubPassed    SubItemStatus = "passed"
	SubFailed    SubItemStatus = "failed"
	SubSkipped   SubItemStatus = "skipped"
)

// OverallStatus mirrors model.OverallStatus.
type OverallStatus string

const (
	OverallNotTested  OverallStatus = "not_tested"
	OverallInProgress OverallStatus = "in_progress"
	OverallPassed     OverallStatus = "passed"
	OverallFailed     OverallStatus = "failed"
	OverallSkipped    OverallStatus = "skipped"
)

// Channel is the model's view of one channel: just enough state to derive
// overall_status, with no addressing/classification fields the real
// invariants don't touch.
type Channel struct {
	ID              string
	HardPointResult HardPointResult
	SubItems        map[string]SubItemStatus
	OverallStatus   OverallStatus
	Skipped         bool
}

// Model tracks the expected state of every channel the test has imported.
type Model struct {
	channels map[string]*Channel
}

func New() *Model {
	return &Model{channels: make(map[string]*Channel)}
}

// Import seeds a channel with the given applicable sub-items, mirroring
// InitializeFromImport. Items already known to be unreachable (no setpoint
// configured, etc.) should be passed in as SubSkipped by the caller, the
// same way channelstate.seedSubItems pre-skips them.
func (m *Model) Import(id string, subItems map[string]SubItemStatus) *Error {
	if _, exists := m.channels[id]; exists {
		return newErr(ErrChannelExists, id)
	}

	cp := make(map[string]SubItemStatus, len(subItems))
	for k, v := range subItems {
		cp[k] = v
	}

	m.channels[id] = &Channel{
		ID:              id,
		HardPointResult: HPNotTested,
		SubItems:        cp,
		OverallStatus:   OverallNotTested,
	}

	return nil
}

func (m *Model) get(id string) (*Channel, *Error) {
	c, ok := m.channels[id]
	if !ok {
		return nil, newErr(ErrChannelNotFound, id)
	}

	return c, nil
}

// PrepareForWiringConfirmation requires hard_point_result in
// {not_tested, failed} and moves it to waiting.
func (m *Model) PrepareForWiringConfirmation(id string) *Error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	if c.HardPointResult != HPNotTested && c.HardPointResult != HPFailed {
		return newErr(ErrIllegalTransition, id)
	}

	c.HardPointResult = HPWaiting
	c.recompute()

	return nil
}

// BeginHardPointTest requires waiting and moves to in_progress.
func (m *Model) BeginHardPointTest(id string) *Error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	if c.HardPointResult != HPWaiting {
		return newErr(ErrIllegalTransition, id)
	}

	c.HardPointResult = HPInProgress
	c.recompute()

	return nil
}

// RecordHardPointOutcome requires in_progress and records passed or failed.
func (m *Model) RecordHardPointOutcome(id string, verdict HardPointResult) *Error {
	if verdict != HPPassed && verdict != HPFailed {
		return newErr(ErrIllegalTransition, id)
	}

	c, err := m.get(id)
	if err != nil {
		return err
	}

	if c.HardPointResult != HPInProgress {
		return newErr(ErrIllegalTransition, id)
	}

	c.HardPointResult = verdict
	c.recompute()

	return nil
}

// SetManualSubOutcome requires the item to be known and not skipped, and
// records passed or failed.
func (m *Model) SetManualSubOutcome(id, item string, status SubItemStatus) *Error {
	if status != SubPassed && status != SubFailed {
		return newErr(ErrIllegalTransition, id)
	}

	c, err := m.get(id)
	if err != nil {
		return err
	}

	current, known := c.SubItems[item]
	if !known {
		return newErr(ErrUnknownSubItem, id)
	}

	if current == SubSkipped {
		return newErr(ErrNotApplicable, id)
	}

	c.SubItems[item] = status
	c.recompute()

	return nil
}

// MarkAsSkipped forces every sub-item to skipped and overall_status to
// skipped directly, bypassing recompute the same way
// channelstate.MarkAsSkipped does.
func (m *Model) MarkAsSkipped(id string) *Error {
	c, err := m.get(id)
	if err != nil {
		return err
	}

	c.HardPointResult = HPFailed
	c.Skipped = true

	for item := range c.SubItems {
		c.SubItems[item] = SubSkipped
	}

	c.OverallStatus = OverallSkipped

	return nil
}

// Get returns a copy of the model's view of id, for assertion against the
// real Manager's snapshot.
func (m *Model) Get(id string) (Channel, *Error) {
	c, err := m.get(id)
	if err != nil {
		return Channel{}, err
	}

	cp := *c
	cp.SubItems = make(map[string]SubItemStatus, len(c.SubItems))

	for k, v := range c.SubItems {
		cp.SubItems[k] = v
	}

	return cp, nil
}

// recompute is the model's version of channelstate.recomputeOverallStatus:
// a pure function of hard_point_result and the sub-item map, never called
// after a bulk skip.
func (c *Channel) recompute() {
	switch c.HardPointResult {
	case HPNotTested, HPWaiting:
		c.OverallStatus = OverallNotTested
	case HPInProgress:
		c.OverallStatus = OverallInProgress
	case HPFailed:
		c.OverallStatus = OverallFailed
	case HPPassed:
		anyFailed := false
		allDone := true

		for _, status := range c.SubItems {
			if status == SubFailed {
				anyFailed = true
			}

			if status != SubPassed && status != SubSkipped {
				allDone = false
			}
		}

		switch {
		case anyFailed:
			c.OverallStatus = OverallFailed
		case allDone:
			c.OverallStatus = OverallPassed
		default:
			c.OverallStatus = OverallInProgress
		}
	default:
		c.OverallStatus = OverallNotTested
	}
}

package channelstate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatorch/internal/channelstate"
	"fatorch/internal/events"
	"fatorch/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.events)
}

func aiRaw(id string) channelstate.RawChannel {
	ll, hh := 10.0, 90.0

	return channelstate.RawChannel{
		ID:              id,
		Tag:             "TI-" + id,
		ModuleType:      model.ModuleAI,
		TargetAddress:   "DB1.DBD0",
		TestAddress:     "DB2.DBD0",
		SLSetpointAddr:  "DB1.DBD4",
		SHHSetpointAddr: "DB1.DBD8",
		RangeLow:        0,
		RangeHigh:       100,
		LL:              &ll,
		HH:              &hh,
	}
}

func diRaw(id string) channelstate.RawChannel {
	return channelstate.RawChannel{
		ID:            id,
		Tag:           "DI-" + id,
		ModuleType:    model.ModuleDI,
		TargetAddress: "DB1.DBX0.0",
		TestAddress:   "DB2.DBX0.0",
	}
}

func TestInitializeFromImportSeedsAutoSkips(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	mgr := channelstate.New(pub)

	c, err := mgr.InitializeFromImport(aiRaw("c1"))
	require.NoError(t, err)

	// No SH setpoint address configured -> high_alarm auto-skips per
	// invariant 6; SL/SHH are configured, so low and high_high stay
	// not_tested.
	assert.Equal(t, model.SubItemSkipped, c.SubItems[model.SubItemHighAlarm])
	assert.Equal(t, model.SubItemNotTested, c.SubItems[model.SubItemLowAlarm])
	assert.Equal(t, model.SubItemNotTested, c.SubItems[model.SubItemHighHighAlarm])
	assert.Equal(t, model.SubItemSkipped, c.SubItems[model.SubItemMaintenance])
	assert.Equal(t, model.HardPointNotTested, c.HardPointResult)
	assert.Equal(t, model.OverallNotTested, c.OverallStatus)
	assert.Equal(t, 1, pub.count())
}

func TestHardPointLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, err := mgr.InitializeFromImport(diRaw("c1"))
	require.NoError(t, err)

	_, err = mgr.BeginHardPointTest(ctx, "c1")
	assert.ErrorIs(t, err, channelstate.ErrIllegalTransition, "must be waiting before in_progress")

	_, err = mgr.PrepareForWiringConfirmation(ctx, "c1")
	require.NoError(t, err)

	c, err := mgr.BeginHardPointTest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.HardPointInProgress, c.HardPointResult)
	assert.NotNil(t, c.StartTime)

	c, err = mgr.RecordHardPointOutcome(ctx, "c1", model.HardPointPassed, "")
	require.NoError(t, err)
	assert.Equal(t, model.HardPointPassed, c.HardPointResult)
	// show_value is still outstanding for DI, so overall isn't terminal yet.
	assert.Equal(t, model.OverallInProgress, c.OverallStatus)
	assert.Nil(t, c.FinalTime)
}

func TestRecordHardPointOutcomeFailedIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, err := mgr.InitializeFromImport(diRaw("c1"))
	require.NoError(t, err)

	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")

	c, err := mgr.RecordHardPointOutcome(ctx, "c1", model.HardPointFailed, "deviation exceeded")
	require.NoError(t, err)
	assert.Equal(t, model.OverallFailed, c.OverallStatus)
	assert.NotNil(t, c.FinalTime)
}

func TestSetManualSubOutcomeCompletesChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub := &recordingPublisher{}
	mgr := channelstate.New(pub)

	_, _ = mgr.InitializeFromImport(diRaw("c1"))
	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")
	_, _ = mgr.RecordHardPointOutcome(ctx, "c1", model.HardPointPassed, "")

	before := pub.count()

	c, err := mgr.SetManualSubOutcome(ctx, "c1", model.SubItemShowValue, model.SubItemPassed, "")
	require.NoError(t, err)
	assert.Equal(t, model.OverallPassed, c.OverallStatus)
	assert.NotNil(t, c.FinalTime)
	assert.Greater(t, pub.count(), before, "expected both ChannelStatesModified and TestStatusUpdated")
}

func TestSetManualSubOutcomeRejectsSkippedItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(aiRaw("c1")) // high_alarm auto-skipped

	_, err := mgr.SetManualSubOutcome(ctx, "c1", model.SubItemHighAlarm, model.SubItemPassed, "")
	assert.ErrorIs(t, err, channelstate.ErrNotApplicable)
}

func TestSetManualSubOutcomeUnknownItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(diRaw("c1"))

	_, err := mgr.SetManualSubOutcome(ctx, "c1", model.SubItemTrendCheck, model.SubItemPassed, "")
	assert.ErrorIs(t, err, channelstate.ErrUnknownSubItem)
}

func TestBeginManualTestRequiresHardPointPassed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(aiRaw("c1"))

	_, err := mgr.BeginManualTest(ctx, "c1")
	assert.ErrorIs(t, err, channelstate.ErrHardPointNotPassed)
}

func TestBeginManualTestBypassedForReservedType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	raw := diRaw("c1")
	raw.ModuleType = model.ModuleDINone

	_, _ = mgr.InitializeFromImport(raw)

	_, err := mgr.BeginManualTest(ctx, "c1")
	assert.NoError(t, err)
}

func TestBeginManualTestRejectsInProgressEvenForReservedType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	raw := diRaw("c1")
	raw.ModuleType = model.ModuleDINone

	_, _ = mgr.InitializeFromImport(raw)
	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")

	_, err := mgr.BeginManualTest(ctx, "c1")
	assert.ErrorIs(t, err, channelstate.ErrChannelBusy)
}

func TestSetManualSubOutcomeRejectsInProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	raw := diRaw("c1")
	raw.ModuleType = model.ModuleDINone

	_, _ = mgr.InitializeFromImport(raw)
	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")

	_, err := mgr.SetManualSubOutcome(ctx, "c1", model.SubItemShowValue, model.SubItemPassed, "")
	assert.ErrorIs(t, err, channelstate.ErrChannelBusy)
}

func TestResetForRetestClearsStateBackToWaiting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(diRaw("c1"))
	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")
	_, _ = mgr.RecordHardPointOutcome(ctx, "c1", model.HardPointFailed, "boom")

	c, err := mgr.ResetForRetest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.HardPointWaiting, c.HardPointResult)
	assert.Equal(t, "", c.HardPointErrorDetail)
	assert.Equal(t, model.SubItemNotTested, c.SubItems[model.SubItemShowValue])
}

func TestResetForRetestRejectsInProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(diRaw("c1"))
	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")

	_, err := mgr.ResetForRetest(ctx, "c1")
	assert.ErrorIs(t, err, channelstate.ErrChannelBusy)
}

func TestMarkAsSkippedForcesOverallSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(aiRaw("c1"))

	c, err := mgr.MarkAsSkipped(ctx, "c1", "module not installed", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.OverallSkipped, c.OverallStatus)

	for _, status := range c.SubItems {
		assert.Equal(t, model.SubItemSkipped, status)
	}
}

func TestRecordCancelledHardPointResolvesToFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)

	_, _ = mgr.InitializeFromImport(diRaw("c1"))
	_, _ = mgr.PrepareForWiringConfirmation(ctx, "c1")
	_, _ = mgr.BeginHardPointTest(ctx, "c1")

	c, err := mgr.RecordCancelledHardPoint(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.HardPointFailed, c.HardPointResult)
	assert.Equal(t, "cancelled", c.HardPointErrorDetail)
}

func TestGetUnknownChannel(t *testing.T) {
	t.Parallel()

	mgr := channelstate.New(nil)

	_, err := mgr.Get("nope")
	assert.ErrorIs(t, err, channelstate.ErrChannelNotFound)
}

package manualtest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatorch/internal/channelstate"
	"fatorch/internal/manualtest"
	"fatorch/internal/model"
	"fatorch/internal/plcgateway"
)

func diRaw(id string) channelstate.RawChannel {
	return channelstate.RawChannel{
		ID:            id,
		Tag:           "DI-" + id,
		ModuleType:    model.ModuleDI,
		TargetAddress: "DB1.DBX0.0",
		TestAddress:   "DB2.DBX0.0",
	}
}

func aoRaw(id string) channelstate.RawChannel {
	return channelstate.RawChannel{
		ID:            id,
		Tag:           "AO-" + id,
		ModuleType:    model.ModuleAO,
		TargetAddress: "DB1.DBD0",
		TestAddress:   "DB2.DBD0",
		RangeLow:      0,
		RangeHigh:     100,
	}
}

type recordingSaver struct {
	saved []*model.Channel
}

func (s *recordingSaver) SaveQueued(c *model.Channel) { s.saved = append(s.saved, c) }

func passHardPoint(t *testing.T, mgr *channelstate.Manager, id string) {
	t.Helper()

	ctx := context.Background()

	_, err := mgr.PrepareForWiringConfirmation(ctx, id)
	require.NoError(t, err)

	_, err = mgr.BeginHardPointTest(ctx, id)
	require.NoError(t, err)

	_, err = mgr.RecordHardPointOutcome(ctx, id, model.HardPointPassed, "")
	require.NoError(t, err)
}

func TestBeginRejectsSecondConcurrentSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	reg := plcgateway.NewRegistry(plcgateway.NewFake(), plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	_, _ = chMgr.InitializeFromImport(diRaw("c2"))
	passHardPoint(t, chMgr, "c1")
	passHardPoint(t, chMgr, "c2")

	_, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	_, err = co.Begin(ctx, "c2")
	assert.ErrorIs(t, err, manualtest.ErrSessionInProgress)
}

func TestBeginRejectsWithoutPassedHardPoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	reg := plcgateway.NewRegistry(plcgateway.NewFake(), plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))

	_, err := co.Begin(ctx, "c1")
	assert.ErrorIs(t, err, channelstate.ErrHardPointNotPassed)
}

func TestConfirmSubItemCompletesSessionAndSaves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	reg := plcgateway.NewRegistry(plcgateway.NewFake(), plcgateway.NewFake())
	saver := &recordingSaver{}
	co := manualtest.New(chMgr, reg, saver)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	passHardPoint(t, chMgr, "c1")

	s, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	c, err := co.ConfirmSubItem(ctx, s, model.SubItemShowValue)
	require.NoError(t, err)
	assert.Equal(t, model.OverallPassed, c.OverallStatus)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "c1", saver.saved[0].ID)
}

func TestConfirmSubItemIdempotentWhenAlreadyPassed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	reg := plcgateway.NewRegistry(plcgateway.NewFake(), plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	passHardPoint(t, chMgr, "c1")

	s, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	_, err = co.ConfirmSubItem(ctx, s, model.SubItemShowValue)
	require.NoError(t, err)

	// Calling again on an already-passed item is a harmless no-op.
	_, err = co.ConfirmSubItem(ctx, s, model.SubItemShowValue)
	assert.NoError(t, err)
}

func TestFailSubItemRecordsNoteAndFailsChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	reg := plcgateway.NewRegistry(plcgateway.NewFake(), plcgateway.NewFake())
	saver := &recordingSaver{}
	co := manualtest.New(chMgr, reg, saver)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	passHardPoint(t, chMgr, "c1")

	s, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	c, err := co.FailSubItem(ctx, s, model.SubItemShowValue, "reading never settled")
	require.NoError(t, err)
	assert.Equal(t, model.OverallFailed, c.OverallStatus)
	assert.Equal(t, "reading never settled", c.SubItemNotes[model.SubItemShowValue])
	require.Len(t, saver.saved, 1)
}

func TestCloseReleasesSessionSlot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	reg := plcgateway.NewRegistry(plcgateway.NewFake(), plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	_, _ = chMgr.InitializeFromImport(diRaw("c2"))
	passHardPoint(t, chMgr, "c1")
	passHardPoint(t, chMgr, "c2")

	s, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	co.Close(s)

	_, err = co.Begin(ctx, "c2")
	assert.NoError(t, err)
}

func TestAOFiveCaptureGatesShowValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	testPLC := plcgateway.NewFake()
	reg := plcgateway.NewRegistry(testPLC, plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(aoRaw("c1"))
	passHardPoint(t, chMgr, "c1")

	s, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	c, err := chMgr.Get("c1")
	require.NoError(t, err)

	co.StartMonitoring(ctx, s, testPLC, map[string]string{c.TestAddress: "current_output"}, map[string]bool{"current_output": true})
	defer co.StopMonitoring(s)

	captureAt := func(p float64) {
		eng := p / 100 * (c.RangeHigh - c.RangeLow)
		testPLC.SetAnalog(c.TestAddress, float32(eng))

		require.Eventually(t, func() bool {
			raw, ok := s.CurrentValues()["current_output"]

			return ok && raw == fmt.Sprintf("%.2f", eng)
		}, 2*time.Second, 10*time.Millisecond)

		_, _, err := co.CaptureCheckpoint(c, s, p)
		require.NoError(t, err)
	}

	captureAt(0)

	// show_value cannot be confirmed until all five checkpoints land.
	_, err = co.ConfirmSubItem(ctx, s, model.SubItemShowValue)
	assert.ErrorIs(t, err, manualtest.ErrCaptureIncomplete)

	for _, p := range []float64{25, 50, 75, 100} {
		captureAt(p)
	}

	assert.True(t, s.AllCheckpointsCaptured())

	_, err = co.ConfirmSubItem(ctx, s, model.SubItemShowValue)
	assert.NoError(t, err)
}

func TestPulseDigitalWritesTestAddress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	testPLC := plcgateway.NewFake()
	reg := plcgateway.NewRegistry(testPLC, plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	passHardPoint(t, chMgr, "c1")

	c, err := chMgr.Get("c1")
	require.NoError(t, err)

	require.NoError(t, co.PulseDigital(ctx, c, true))

	v, err := testPLC.ReadDigital(ctx, c.TestAddress)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestStartMonitoringProducesReadings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	testPLC := plcgateway.NewFake()
	testPLC.SetDigital("DB2.DBX0.0", true)
	reg := plcgateway.NewRegistry(testPLC, plcgateway.NewFake())
	co := manualtest.New(chMgr, reg, nil)

	_, _ = chMgr.InitializeFromImport(diRaw("c1"))
	passHardPoint(t, chMgr, "c1")

	s, err := co.Begin(ctx, "c1")
	require.NoError(t, err)

	co.StartMonitoring(ctx, s, testPLC, map[string]string{"DB2.DBX0.0": "current_state"}, map[string]bool{"current_state": false})
	defer co.StopMonitoring(s)

	require.Eventually(t, func() bool {
		v, ok := s.CurrentValues()["current_state"]

		return ok && v == "true"
	}, 2*time.Second, 10*time.Millisecond)
}

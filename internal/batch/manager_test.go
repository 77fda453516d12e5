package batch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatorch/internal/batch"
	"fatorch/internal/channelstate"
	"fatorch/internal/model"
)

func seedBatch(t *testing.T, chMgr *channelstate.Manager, bMgr *batch.Manager, name string, types ...model.ModuleType) {
	t.Helper()

	_, err := bMgr.CreateBatch(name, []string{"STATION-1"})
	require.NoError(t, err)

	for i, mt := range types {
		id := name + "-c" + string(rune('0'+i))

		_, err := chMgr.InitializeFromImport(channelstate.RawChannel{
			ID:            id,
			ModuleType:    mt,
			TargetAddress: "target-" + id,
			TestAddress:   "test-" + id,
			BatchID:       name,
		})
		require.NoError(t, err)

		require.NoError(t, bMgr.AddChannels(name, id))
	}
}

func TestCreateBatchRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	_, err := bMgr.CreateBatch("B1", nil)
	require.NoError(t, err)

	_, err = bMgr.CreateBatch("B1", nil)
	assert.ErrorIs(t, err, batch.ErrBatchAlreadyExists)
}

func TestConfirmWiringMovesChannelsToWaiting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI, model.ModuleDI)

	b, err := bMgr.ConfirmWiring(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchWiringConfirmed, b.Status)

	channels, err := bMgr.Channels("B1")
	require.NoError(t, err)

	for _, c := range channels {
		assert.Equal(t, model.HardPointWaiting, c.HardPointResult)
	}
}

func TestConfirmWiringRejectsWhileTesting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI)

	_, err := bMgr.ConfirmWiring(ctx, "B1")
	require.NoError(t, err)

	_, err = bMgr.StartTesting("B1")
	require.NoError(t, err)

	_, err = bMgr.ConfirmWiring(ctx, "B1")
	assert.ErrorIs(t, err, batch.ErrBatchBusy)
}

func TestSkipModulesMarksMatchingChannelsSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI, model.ModuleAI)

	b, err := bMgr.SkipModules(ctx, "B1", []model.ModuleType{model.ModuleDI}, "module not installed")
	require.NoError(t, err)
	assert.Equal(t, model.BatchNotStarted, b.Status)

	channels, err := bMgr.Channels("B1")
	require.NoError(t, err)

	var sawSkipped, sawUntouched bool

	for _, c := range channels {
		switch c.ModuleType {
		case model.ModuleDI:
			assert.Equal(t, model.OverallSkipped, c.OverallStatus)
			sawSkipped = true
		case model.ModuleAI:
			assert.Equal(t, model.OverallNotTested, c.OverallStatus)
			sawUntouched = true
		}
	}

	assert.True(t, sawSkipped)
	assert.True(t, sawUntouched)
}

// TestConfirmWiringExcludesSkippedChannels covers §8 scenario 6's
// "subsequent confirm_wiring excludes skipped channels": SkipModules marks
// a channel's hard_point_result failed as its skip sentinel, the same
// value PrepareForWiringConfirmation otherwise treats as eligible for
// waiting, so ConfirmWiring must recognize the skip by overall_status and
// leave the channel alone rather than reviving it into the wiring pool.
func TestConfirmWiringExcludesSkippedChannels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI, model.ModuleAI)

	_, err := bMgr.SkipModules(ctx, "B1", []model.ModuleType{model.ModuleDI}, "module not installed")
	require.NoError(t, err)

	b, err := bMgr.ConfirmWiring(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchWiringConfirmed, b.Status)

	channels, err := bMgr.Channels("B1")
	require.NoError(t, err)

	for _, c := range channels {
		switch c.ModuleType {
		case model.ModuleDI:
			assert.Equal(t, model.OverallSkipped, c.OverallStatus, "skipped channel must not be revived by confirm_wiring")
			assert.Equal(t, model.HardPointFailed, c.HardPointResult)
		case model.ModuleAI:
			assert.Equal(t, model.HardPointWaiting, c.HardPointResult)
		}
	}
}

func TestStartTestingRequiresWiringConfirmedFirst(t *testing.T) {
	t.Parallel()

	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI)

	_, err := bMgr.StartTesting("B1")
	assert.ErrorIs(t, err, batch.ErrIllegalTransition)
}

func TestCompleteRejectsWhileChannelsOutstanding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI)
	_, err := bMgr.ConfirmWiring(ctx, "B1")
	require.NoError(t, err)

	_, err = bMgr.Complete("B1")
	assert.ErrorIs(t, err, batch.ErrBatchBusy)
}

func TestCompleteSucceedsOnceAllChannelsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI)

	_, err := bMgr.SkipModules(ctx, "B1", []model.ModuleType{model.ModuleDI}, "not installed")
	require.NoError(t, err)

	b, err := bMgr.Complete("B1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, b.Status)
}

func TestCountsReflectChannelOutcomes(t *testing.T) {
	t.Parallel()

	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI, model.ModuleAI)

	counts, err := bMgr.Counts("B1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
}

func TestRemoveChannelsDetachesFromBatch(t *testing.T) {
	t.Parallel()

	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI, model.ModuleAI)

	err := bMgr.RemoveChannels("B1", "B1-c0")
	require.NoError(t, err)

	b, err := bMgr.Get("B1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1-c1"}, b.ChannelIDs)
}

func TestRemoveChannelsRejectsWhenBatchTesting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	seedBatch(t, chMgr, bMgr, "B1", model.ModuleDI)

	_, err := bMgr.ConfirmWiring(ctx, "B1")
	require.NoError(t, err)

	_, err = bMgr.StartTesting("B1")
	require.NoError(t, err)

	err = bMgr.RemoveChannels("B1", "B1-c0")
	assert.ErrorIs(t, err, batch.ErrBatchBusy)
}

func TestRemoveChannelsRejectsUnknownBatch(t *testing.T) {
	t.Parallel()

	chMgr := channelstate.New(nil)
	bMgr := batch.New(chMgr)

	err := bMgr.RemoveChannels("NOPE", "c0")
	assert.ErrorIs(t, err, batch.ErrBatchNotFound)
}

package channelstate_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatorch/internal/channelstate"
	"fatorch/internal/model"
	"fatorch/internal/testutil/oracle"
)

// lifecycleSnapshot is the comparable shape both the real Manager's Channel
// and the oracle Model's Channel get reduced to, the same
// reduce-then-cmp.Diff pattern pkg/slotcache's model/real harness uses to
// compare two differently-typed views of the same state.
type lifecycleSnapshot struct {
	OverallStatus string
	SubItems      map[string]string
}

func realSnapshot(c *model.Channel) lifecycleSnapshot {
	items := make(map[string]string, len(c.SubItems))
	for item, status := range c.SubItems {
		items[string(item)] = string(status)
	}

	return lifecycleSnapshot{OverallStatus: string(c.OverallStatus), SubItems: items}
}

func modelSnapshot(c oracle.Channel) lifecycleSnapshot {
	items := make(map[string]string, len(c.SubItems))
	for item, status := range c.SubItems {
		items[item] = string(status)
	}

	return lifecycleSnapshot{OverallStatus: string(c.OverallStatus), SubItems: items}
}

// oracleSubItems mirrors seedSubItems' auto-skip rule for the DI raw
// channel used below: show_value is the only applicable item and nothing
// auto-skips it.
func oracleSubItemsForDI() map[string]oracle.SubItemStatus {
	return map[string]oracle.SubItemStatus{
		string(model.SubItemShowValue): oracle.SubNotTested,
	}
}

// TestHardPointLifecycleMatchesOracle drives the real Manager and the
// in-memory oracle model through the same scripted sequence of operations
// and asserts they agree at every step, the cross-check relationship
// this package keeps between channel lifecycle and
// internal/testutil/oracle.
func TestHardPointLifecycleMatchesOracle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)
	om := oracle.New()

	const id = "c1"

	_, err := mgr.InitializeFromImport(diRaw(id))
	require.NoError(t, err)
	require.Nil(t, om.Import(id, oracleSubItemsForDI()))

	steps := []struct {
		name string
		real func() error
		mock func() *oracle.Error
	}{
		{
			"prepare for wiring",
			func() error { _, err := mgr.PrepareForWiringConfirmation(ctx, id); return err },
			func() *oracle.Error { return om.PrepareForWiringConfirmation(id) },
		},
		{
			"begin hard point",
			func() error { _, err := mgr.BeginHardPointTest(ctx, id); return err },
			func() *oracle.Error { return om.BeginHardPointTest(id) },
		},
		{
			"record passed",
			func() error {
				_, err := mgr.RecordHardPointOutcome(ctx, id, model.HardPointPassed, "")
				return err
			},
			func() *oracle.Error { return om.RecordHardPointOutcome(id, oracle.HPPassed) },
		},
		{
			"confirm show_value",
			func() error {
				_, err := mgr.SetManualSubOutcome(ctx, id, model.SubItemShowValue, model.SubItemPassed, "")
				return err
			},
			func() *oracle.Error {
				return om.SetManualSubOutcome(id, string(model.SubItemShowValue), oracle.SubPassed)
			},
		},
	}

	var lastChannel *model.Channel

	for _, step := range steps {
		realErr := step.real()
		mockErr := step.mock()

		assert.Equal(t, realErr == nil, mockErr == nil, "step %q: error presence mismatch (real=%v, model=%v)", step.name, realErr, mockErr)

		c, err := mgr.Get(id)
		require.NoError(t, err)
		lastChannel = c
	}

	modelView, mErr := om.Get(id)
	require.Nil(t, mErr)

	if diff := cmp.Diff(modelSnapshot(modelView), realSnapshot(lastChannel), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("real channel diverged from the model (-model +real):\n%s", diff)
	}

	assert.Equal(t, model.OverallPassed, lastChannel.OverallStatus)
}

// TestIllegalTransitionsMatchOracle checks that the real Manager and the
// model agree on which transitions are illegal, independent of the happy
// path above.
func TestIllegalTransitionsMatchOracle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := channelstate.New(nil)
	om := oracle.New()

	const id = "c1"

	_, err := mgr.InitializeFromImport(diRaw(id))
	require.NoError(t, err)
	require.Nil(t, om.Import(id, oracleSubItemsForDI()))

	_, realErr := mgr.BeginHardPointTest(ctx, id)
	mockErr := om.BeginHardPointTest(id)

	assert.Error(t, realErr, "not_tested -> in_progress must be illegal")
	assert.NotNil(t, mockErr)
	assert.ErrorIs(t, realErr, channelstate.ErrIllegalTransition)
	assert.Equal(t, oracle.ErrIllegalTransition, mockErr.Code)
}

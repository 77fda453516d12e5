// Package cli implements the operator command surface
// describes: import/allocate, batch wiring-confirmation, test-run
// control, manual-test confirm/fail, and record-store administration.
// Grounded on internal/cli/command.go/run.go's Command-struct and IO
// bundle (both domain-neutral and kept verbatim), generalized from
// ticket subcommands to FAT operator commands.
package cli

import (
	"context"
	"fmt"

	"fatorch/internal/batch"
	"fatorch/internal/channelstate"
	"fatorch/internal/config"
	"fatorch/internal/eventbus"
	"fatorch/internal/hardpoint"
	"fatorch/internal/manualtest"
	"fatorch/internal/plcgateway"
	"fatorch/internal/recordstore"
	"fatorch/internal/scheduler"
)

// Orchestrator wires every core component (C1-C9) into one session. A
// single Orchestrator lives for the duration of one fatorch console
// session (or one fatorch-bench run); one-shot disk-only commands
// (show-config, repair, restore-batch, delete-batch, list-records) only
// need the Config and RecordStore fields and can be constructed without a
// PLC gateway pair.
type Orchestrator struct {
	Config config.Config

	Bus       *eventbus.Bus
	Channels  *channelstate.Manager
	Batches   *batch.Manager
	Executor  *hardpoint.Executor
	Scheduler *scheduler.Scheduler
	Manual    *manualtest.Coordinator
	Records   *recordstore.Manager
	Gateways  *plcgateway.Registry
}

// New wires a full Orchestrator: the Event Bus feeds the Channel State
// Manager, the Hard-Point Executor and Scheduler share the PLC gateway
// registry, and both the Scheduler and Manual Test Coordinator queue
// terminal channels through the same Record Store, following the flow
// description.
func New(ctx context.Context, cfg config.Config, testPLC, targetPLC plcgateway.Gateway) (*Orchestrator, error) {
	records, err := recordstore.NewManager(ctx, cfg.RecordDirAbs, cfg.DedupWindow.AsDuration())
	if err != nil {
		return nil, fmt.Errorf("cli: open record store: %w", err)
	}

	bus := eventbus.New()
	chMgr := channelstate.New(bus)
	batchMgr := batch.New(chMgr)
	registry := plcgateway.NewRegistry(testPLC, targetPLC)

	executor := hardpoint.New(registry, hardpoint.Params{
		Settle:               cfg.Settle.AsDuration(),
		InterCheckpoint:      cfg.InterCheckpoint.AsDuration(),
		ResetTimeout:         cfg.ResetTimeout.AsDuration(),
		ToleranceDefault:     cfg.ToleranceDefault,
		ToleranceAO:          cfg.ToleranceAO,
		InvertNormallyClosed: cfg.InvertNormallyClosed,
		AOWritePercent:       cfg.AOWriteMode == config.AOWritePercent,
		ResetFailureIsFatal:  cfg.ResetFailureIsFatal,
	})

	sched := scheduler.New(chMgr, executor, records, cfg.MaxParallel)
	manual := manualtest.New(chMgr, registry, records)

	return &Orchestrator{
		Config:    cfg,
		Bus:       bus,
		Channels:  chMgr,
		Batches:   batchMgr,
		Executor:  executor,
		Scheduler: sched,
		Manual:    manual,
		Records:   records,
		Gateways:  registry,
	}, nil
}

// NewRecordsOnly wires just enough of the Orchestrator for the disk-only
// commands (show-config, repair, restore-batch, delete-batch,
// list-records) that don't need a live channel set or PLC gateways.
func NewRecordsOnly(ctx context.Context, cfg config.Config) (*Orchestrator, error) {
	records, err := recordstore.NewManager(ctx, cfg.RecordDirAbs, cfg.DedupWindow.AsDuration())
	if err != nil {
		return nil, fmt.Errorf("cli: open record store: %w", err)
	}

	return &Orchestrator{Config: cfg, Records: records}, nil
}

// Close releases the record store's worker and SQLite handle.
func (o *Orchestrator) Close() error {
	if o.Records == nil {
		return nil
	}

	return o.Records.Close()
}

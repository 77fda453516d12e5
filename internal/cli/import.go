package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"fatorch/internal/channelstate"
	"fatorch/internal/model"

	flag "github.com/spf13/pflag"
)

// importRecord is the on-disk shape of one raw channel, a JSON stand-in
// for the Excel point-list importer — that parser
// is out of scope; this command only consumes its output shape, exactly
// as channelstate.RawChannel names it.
type importRecord struct {
	ID          string `json:"id"`
	TestID      int    `json:"test_id"`
	Tag         string `json:"tag"`
	Description string `json:"description"`

	ModuleType string `json:"module_type"`
	WireSystem string `json:"wire_system"`

	TargetAddress   string `json:"target_address"`
	TestAddress     string `json:"test_address"`
	SLLSetpointAddr string `json:"sll_setpoint_address"`
	SLSetpointAddr  string `json:"sl_setpoint_address"`
	SHSetpointAddr  string `json:"sh_setpoint_address"`
	SHHSetpointAddr string `json:"shh_setpoint_address"`
	MaintenanceAddr string `json:"maintenance_enable_address"`

	RangeLow  float64  `json:"range_low"`
	RangeHigh float64  `json:"range_high"`
	LLL       *float64 `json:"lll,omitempty"`
	LL        *float64 `json:"ll,omitempty"`
	H         *float64 `json:"h,omitempty"`
	HH        *float64 `json:"hh,omitempty"`

	BatchID string `json:"batch_id"`
	TestTag string `json:"test_tag"`
}

func (r importRecord) toRaw() channelstate.RawChannel {
	return channelstate.RawChannel{
		ID:              r.ID,
		TestID:          r.TestID,
		Tag:             r.Tag,
		Description:     r.Description,
		ModuleType:      model.ModuleType(r.ModuleType),
		WireSystem:      model.WireSystem(r.WireSystem),
		TargetAddress:   r.TargetAddress,
		TestAddress:     r.TestAddress,
		SLLSetpointAddr: r.SLLSetpointAddr,
		SLSetpointAddr:  r.SLSetpointAddr,
		SHSetpointAddr:  r.SHSetpointAddr,
		SHHSetpointAddr: r.SHHSetpointAddr,
		MaintenanceAddr: r.MaintenanceAddr,
		RangeLow:        r.RangeLow,
		RangeHigh:       r.RangeHigh,
		LLL:             r.LLL,
		LL:              r.LL,
		H:               r.H,
		HH:              r.HH,
		BatchID:         r.BatchID,
		TestTag:         r.TestTag,
	}
}

// ImportCmd loads a JSON point-list file and calls
// channelstate.InitializeFromImport on every record, corresponding to
// the import_channels command.
func ImportCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("import", flag.ContinueOnError),
		Usage: "import <file.json>",
		Short: "Import a raw channel point-list",
		Long:  "Load a JSON array of raw channel records and initialize each into the live channel set.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: path to a point-list JSON file", ErrArgRequired)
			}

			return execImport(orch, io, args[0])
		},
	}
}

func execImport(orch *Orchestrator, io *IO, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("import: invalid point-list json: %w", err)
	}

	for _, r := range records {
		c, err := orch.Channels.InitializeFromImport(r.toRaw())
		if err != nil {
			return fmt.Errorf("import: %s: %w", r.ID, err)
		}

		io.Println("imported", c.ID, c.Tag, string(c.ModuleType))
	}

	io.Println(fmt.Sprintf("imported %d channel(s)", len(records)))

	return nil
}

// AllocateCmd assigns already-imported channels to a batch, creating the
// batch if it doesn't exist yet — the allocate_channels command.
// channel-to-batch assignment (allocation) is itself out of scope per
// out of scope here; this command only exercises the Batch & Wiring Gate
// membership call once allocation has already decided the grouping.
func AllocateCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("allocate", flag.ContinueOnError),
		Usage: "allocate <batch> <channel-id>...",
		Short: "Assign imported channels to a batch",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: <batch> <channel-id>...", ErrArgRequired)
			}

			name := args[0]
			ids := args[1:]

			if _, err := orch.Batches.Get(name); err != nil {
				if _, createErr := orch.Batches.CreateBatch(name, orch.Config.StationNames); createErr != nil {
					return createErr
				}
			}

			if err := orch.Batches.AddChannels(name, ids...); err != nil {
				return err
			}

			io.Println(fmt.Sprintf("allocated %d channel(s) to batch %s", len(ids), name))

			return nil
		},
	}
}

// ClearAllocationCmd removes channels from a batch's membership —
// the clear_allocation command.
func ClearAllocationCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("clear-allocation", flag.ContinueOnError),
		Usage: "clear-allocation <batch> <channel-id>...",
		Short: "Remove channels from a batch's membership",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: <batch> <channel-id>...", ErrArgRequired)
			}

			if err := orch.Batches.RemoveChannels(args[0], args[1:]...); err != nil {
				return err
			}

			io.Println(fmt.Sprintf("cleared %d channel(s) from batch %s", len(args[1:]), args[0]))

			return nil
		},
	}
}

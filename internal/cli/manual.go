package cli

import (
	"context"
	"fmt"

	"fatorch/internal/manualtest"
	"fatorch/internal/model"
	"fatorch/internal/plcgateway"

	flag "github.com/spf13/pflag"
)

// monitoringPlan resolves which gateway/address/key combination to poll
// for live monitoring (current_value|current_output|
// current_state plus sll/sl/sh/shh_setpoint), per the observing side of
// each hard-point recipe: the endpoint that reads back a stimulus,
// not the one that writes it.
func monitoringPlan(c *model.Channel) (endpoint plcgateway.Endpoint, addr string, key string, analog bool) {
	switch c.ModuleType.Base() {
	case model.ModuleAI:
		return plcgateway.EndpointTargetPLC, c.TargetAddress, "current_value", true
	case model.ModuleAO:
		return plcgateway.EndpointTestPLC, c.TestAddress, "current_output", true
	case model.ModuleDI:
		return plcgateway.EndpointTargetPLC, c.TargetAddress, "current_state", false
	default: // DO
		return plcgateway.EndpointTestPLC, c.TestAddress, "current_state", false
	}
}

func setpointKeys(c *model.Channel) map[string]string {
	keys := make(map[string]string, 4)

	if c.SLLSetpointAddr != "" {
		keys[c.SLLSetpointAddr] = "sll_setpoint"
	}

	if c.SLSetpointAddr != "" {
		keys[c.SLSetpointAddr] = "sl_setpoint"
	}

	if c.SHSetpointAddr != "" {
		keys[c.SHSetpointAddr] = "sh_setpoint"
	}

	if c.SHHSetpointAddr != "" {
		keys[c.SHHSetpointAddr] = "shh_setpoint"
	}

	return keys
}

// OpenManualTestCmd opens a manual test session for a channel and starts
// live monitoring, per the open_manual_test(channel) command.
func OpenManualTestCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("open-manual-test", flag.ContinueOnError),
		Usage: "open-manual-test <channel>",
		Short: "Open a manual test session for a channel",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <channel>", ErrArgRequired)
			}

			c, err := orch.Channels.Get(args[0])
			if err != nil {
				return err
			}

			session, err := orch.Manual.Begin(ctx, c.ID)
			if err != nil {
				return err
			}

			ep, addr, key, analog := monitoringPlan(c)

			gw, err := orch.Gateways.Get(ep)
			if err != nil {
				return err
			}

			keys := map[string]string{addr: key}
			analogKeys := map[string]bool{key: analog}

			targetGW, err := orch.Gateways.Get(plcgateway.EndpointTargetPLC)
			if err != nil {
				return err
			}

			for spAddr, spKey := range setpointKeys(c) {
				keys[spAddr] = spKey
				analogKeys[spKey] = true
			}

			// Setpoints live on the target PLC regardless of which
			// endpoint observes the stimulated value; monitor both
			// concurrently if they differ.
			orch.Manual.StartMonitoring(ctx, session, gw, keys, analogKeys)

			if ep != plcgateway.EndpointTargetPLC && len(setpointKeys(c)) > 0 {
				orch.Manual.StartMonitoring(ctx, session, targetGW, setpointKeys(c), analogKeys)
			}

			io.Println("opened manual test session for", c.ID, c.Tag)

			applicable := model.ApplicableSubItems(c.ModuleType)
			for _, item := range applicable {
				io.Println("  sub-item:", string(item), "status:", string(c.SubItems[item]))
			}

			return nil
		},
	}
}

// ConfirmSubItemCmd commits a "confirm pass" for a sub-item on the active
// session, per the confirm_sub_item(channel, item) command.
func ConfirmSubItemCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("confirm-sub-item", flag.ContinueOnError),
		Usage: "confirm-sub-item <item>",
		Short: "Confirm pass for a sub-item in the active manual test session",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <item>", ErrArgRequired)
			}

			s := orch.Manual.Active()
			if s == nil {
				return manualtest.ErrNoActiveSession
			}

			c, err := orch.Manual.ConfirmSubItem(ctx, s, model.SubItem(args[0]))
			if err != nil {
				return err
			}

			io.Println(args[0], "-> passed; overall_status:", string(c.OverallStatus))

			return nil
		},
	}
}

// FailSubItemCmd commits a "mark failed" for a sub-item, carrying an
// operator note, per the fail_sub_item(channel, item, note)
// command.
func FailSubItemCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("fail-sub-item", flag.ContinueOnError),
		Usage: "fail-sub-item <item> <note>",
		Short: "Mark a sub-item failed with an operator note",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: <item> <note>", ErrArgRequired)
			}

			s := orch.Manual.Active()
			if s == nil {
				return manualtest.ErrNoActiveSession
			}

			c, err := orch.Manual.FailSubItem(ctx, s, model.SubItem(args[0]), args[1])
			if err != nil {
				return err
			}

			io.Println(args[0], "-> failed; overall_status:", string(c.OverallStatus))

			return nil
		},
	}
}

// CloseManualTestCmd stops monitoring and releases the session slot, per
// the close_manual_test command.
func CloseManualTestCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("close-manual-test", flag.ContinueOnError),
		Usage: "close-manual-test",
		Short: "Close the active manual test session",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			s := orch.Manual.Active()
			if s == nil {
				return manualtest.ErrNoActiveSession
			}

			orch.Manual.Close(s)
			io.Println("closed manual test session for", s.ChannelID)

			return nil
		},
	}
}

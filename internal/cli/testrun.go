package cli

import (
	"context"
	"errors"
	"fmt"

	"fatorch/internal/batch"
	"fatorch/internal/model"

	flag "github.com/spf13/pflag"
)

// StartTestCmd flips a wiring_confirmed batch to testing and runs the
// Scheduler (C6) over every waiting channel in it, blocking until every
// channel has a terminal hard-point result or ctx is cancelled — the
// §6's start_test(batch) command.
func StartTestCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("start-test", flag.ContinueOnError),
		Usage: "start-test <batch>",
		Short: "Run the hard-point sweep for a batch's waiting channels",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <batch>", ErrArgRequired)
			}

			name := args[0]

			if _, err := orch.Batches.StartTesting(name); err != nil {
				return err
			}

			channels, err := orch.Batches.Channels(name)
			if err != nil {
				return err
			}

			waiting := make([]*model.Channel, 0, len(channels))

			for _, c := range channels {
				if c.HardPointResult == model.HardPointWaiting {
					waiting = append(waiting, c)
				}
			}

			io.Println(fmt.Sprintf("running hard-point sweep for %d channel(s)", len(waiting)))

			if err := orch.Scheduler.Run(ctx, waiting); err != nil {
				return err
			}

			// A channel still waiting on manual sub-items keeps the batch in
			// testing; the sweep itself is still complete.
			if _, err := orch.Batches.Complete(name); err != nil && !errors.Is(err, batch.ErrBatchBusy) {
				return err
			}

			io.Println("batch", name, "hard-point sweep complete")

			return nil
		},
	}
}

// PauseCmd pauses the Scheduler, per the pause command.
func PauseCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("pause", flag.ContinueOnError),
		Usage: "pause",
		Short: "Pause the running hard-point sweep",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			orch.Scheduler.Pause()
			io.Println("paused")

			return nil
		},
	}
}

// ResumeCmd resumes a paused Scheduler, per the resume command.
func ResumeCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("resume", flag.ContinueOnError),
		Usage: "resume",
		Short: "Resume a paused hard-point sweep",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			orch.Scheduler.Resume()
			io.Println("resumed")

			return nil
		},
	}
}

// CancelCmd cancels the running Scheduler, per the cancel
// command. Running tasks still attempt their best-effort reset write.
func CancelCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cancel", flag.ContinueOnError),
		Usage: "cancel",
		Short: "Cancel the running hard-point sweep",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			orch.Scheduler.Cancel()
			io.Println("cancelled")

			return nil
		},
	}
}

// RetestCmd resets a single channel back to waiting and re-enqueues it,
// per the retest(channel) command.
func RetestCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("retest", flag.ContinueOnError),
		Usage: "retest <channel>",
		Short: "Reset a channel for retest and re-enqueue it",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <channel>", ErrArgRequired)
			}

			if err := orch.Scheduler.Retest(ctx, args[0]); err != nil {
				return err
			}

			io.Println("channel", args[0], "queued for retest")

			return nil
		},
	}
}

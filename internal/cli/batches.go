package cli

import (
	"context"
	"fmt"

	"fatorch/internal/model"

	flag "github.com/spf13/pflag"
)

// BatchesCmd lists every known batch with its derived counts, the
// operator-facing inspection side of the select_batch command
// (selection itself is just "name a batch in the next command" — there
// is no separate server-side cursor to move).
func BatchesCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("batches", flag.ContinueOnError),
		Usage: "batches",
		Short: "List known batches and their counts",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			for _, b := range orch.Batches.List() {
				counts, err := orch.Batches.Counts(b.Name)
				if err != nil {
					return err
				}

				io.Println(fmt.Sprintf("%s\t%s\tpassed=%d failed=%d waiting=%d total=%d",
					b.Name, b.Status, counts.Passed, counts.Failed, counts.Waiting, counts.Total))
			}

			return nil
		},
	}
}

// ConfirmWiringCmd confirms wiring for a batch, per the
// confirm_wiring(batch) command.
func ConfirmWiringCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("confirm-wiring", flag.ContinueOnError),
		Usage: "confirm-wiring <batch>",
		Short: "Confirm wiring and move the batch's channels to waiting",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <batch>", ErrArgRequired)
			}

			b, err := orch.Batches.ConfirmWiring(ctx, args[0])
			if err != nil {
				return err
			}

			io.Println("batch", b.Name, "status:", string(b.Status))

			return nil
		},
	}
}

// SkipModulesCmd bulk-skips every channel of the given module types in a
// batch, per the skip_modules(batch, modules, reason) command.
func SkipModulesCmd(orch *Orchestrator) *Command {
	fs := flag.NewFlagSet("skip-modules", flag.ContinueOnError)
	reason := fs.String("reason", "", "Reason recorded on each skipped channel")

	return &Command{
		Flags: fs,
		Usage: "skip-modules <batch> <module-type>... --reason=<text>",
		Short: "Bulk-skip channels of the given module types",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: <batch> <module-type>...", ErrArgRequired)
			}

			types := make([]model.ModuleType, 0, len(args)-1)
			for _, t := range args[1:] {
				types = append(types, model.ModuleType(t))
			}

			b, err := orch.Batches.SkipModules(ctx, args[0], types, *reason)
			if err != nil {
				return err
			}

			channels, err := orch.Batches.Channels(b.Name)
			if err != nil {
				return err
			}

			for _, c := range channels {
				if c.OverallStatus == model.OverallSkipped {
					orch.Records.SaveQueued(c)
				}
			}

			io.Println(fmt.Sprintf("skipped module types %v on batch %s", types, b.Name))

			return nil
		},
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"
)

// ExportResultsCmd dumps a batch's current channel snapshots as JSON to
// stdout, per the export_results(batch) command. PDF/Excel
// rendering is out of scope; this command only produces
// the structured data an external reporting tool would consume.
func ExportResultsCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("export-results", flag.ContinueOnError),
		Usage: "export-results <batch>",
		Short: "Dump a batch's channel results as JSON",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <batch>", ErrArgRequired)
			}

			channels, err := orch.Batches.Channels(args[0])
			if err != nil {
				return err
			}

			enc, err := json.MarshalIndent(channels, "", "  ")
			if err != nil {
				return fmt.Errorf("export-results: %w", err)
			}

			io.Printf("%s\n", enc)

			return nil
		},
	}
}

// RestoreBatchCmd prints the Record Store's (C8) persisted snapshots of a
// test_tag's channels, followed by a count — the disk-only side of the
// restore_batch(test_tag) command; restoring into the live in-memory
// channel set is a separate, explicit step the operator takes via
// import/allocate once the station is ready to retest.
func RestoreBatchCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("restore-batch", flag.ContinueOnError),
		Usage: "restore-batch <test_tag>",
		Short: "Print the persisted channel snapshots for a test_tag",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <test_tag>", ErrArgRequired)
			}

			channels, err := orch.Records.Restore(ctx, args[0])
			if err != nil {
				return err
			}

			for _, c := range channels {
				io.Println(c.ID, c.Tag, string(c.OverallStatus))
			}

			io.Println(fmt.Sprintf("restored %d channel(s)", len(channels)))

			return nil
		},
	}
}

// DeleteBatchCmd deletes every persisted record for a test_tag, per
// the delete_batch(test_tag) command.
func DeleteBatchCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete-batch", flag.ContinueOnError),
		Usage: "delete-batch <test_tag>",
		Short: "Delete all persisted records for a test_tag",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: <test_tag>", ErrArgRequired)
			}

			if err := orch.Records.Delete(ctx, args[0]); err != nil {
				return err
			}

			io.Println("deleted records for", args[0])

			return nil
		},
	}
}

// ListRecordsCmd lists every test_tag with persisted records, the
// supplemental inspection command behind restore/delete.
func ListRecordsCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("list-records", flag.ContinueOnError),
		Usage: "list-records",
		Short: "List every test_tag with persisted channel records",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			tags, err := orch.Records.ListBatches(ctx)
			if err != nil {
				return err
			}

			for _, tag := range tags {
				io.Println(tag)
			}

			return nil
		},
	}
}

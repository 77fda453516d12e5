package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// RepairCmd rebuilds the Record Store's SQLite index from the WAL and
// channel snapshot blobs, adapted from internal/cli/repair.go's
// --rebuild-cache path (internal/store/reindex.go's fileproc-driven
// rebuild) — supplemented repair/reindex tooling.
func RepairCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("repair", flag.ContinueOnError),
		Usage: "repair",
		Short: "Rebuild the record store's index from the WAL and snapshots",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			n, err := orch.Records.Reindex(ctx)
			if err != nil {
				return fmt.Errorf("repair: %w", err)
			}

			io.Println(fmt.Sprintf("reindexed %d record(s)", n))

			return nil
		},
	}
}

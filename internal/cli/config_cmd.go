package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// ShowConfigCmd prints the resolved configuration and which files
// contributed it. Adapted from internal/cli/print_config.go (teacher's
// ticket-directory diagnostic), generalized to the orchestrator's full
// settings surface — useful on a FAT station where multiple config
// layers (global station defaults, per-project overrides) are common,
// for the operator to inspect.
func ShowConfigCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show-config", flag.ContinueOnError),
		Usage: "show-config",
		Short: "Show the resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execShowConfig(io, orch)
		},
	}
}

func execShowConfig(io *IO, orch *Orchestrator) error {
	cfg := orch.Config

	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("record_dir=" + cfg.RecordDirAbs)
	io.Printf("max_parallel=%d\n", cfg.MaxParallel)
	io.Printf("settle=%s\n", cfg.Settle.AsDuration())
	io.Printf("inter_checkpoint=%s\n", cfg.InterCheckpoint.AsDuration())
	io.Printf("plc_connect_timeout=%s\n", cfg.PLCConnectTimeout.AsDuration())
	io.Printf("plc_io_timeout=%s\n", cfg.PLCIOTimeout.AsDuration())
	io.Printf("reset_timeout=%s\n", cfg.ResetTimeout.AsDuration())
	io.Printf("tolerance_default=%.2f\n", cfg.ToleranceDefault)
	io.Printf("tolerance_ao=%.2f\n", cfg.ToleranceAO)
	io.Printf("reset_failure_is_fatal=%t\n", cfg.ResetFailureIsFatal)
	io.Printf("invert_normally_closed=%t\n", cfg.InvertNormallyClosed)
	io.Println("ao_write_mode=" + string(cfg.AOWriteMode))
	io.Printf("dedup_window=%s\n", cfg.DedupWindow.AsDuration())

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}

// Package main provides fatorch, the Factory Acceptance Test
// orchestrator's operator binary: one-shot disk commands
// (show-config, repair, restore-batch, delete-batch, list-records) and
// an interactive console for everything that needs a live channel set
// (import, allocate, wiring confirmation, scheduler control, manual
// test). Adapted from cmd/tk/main.go's signal handling and env-map
// plumbing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fatorch/internal/cli"
	"fatorch/internal/config"
	"fatorch/internal/plcgateway"

	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {
	// SetInterspersed(false) makes Parse stop at the first non-flag
	// argument (the command name), leaving the command's own flags (e.g.
	// skip-modules --reason) untouched in globalFlags.Args().
	globalFlags := flag.NewFlagSet("fatorch", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagRecordDir := globalFlags.String("record-dir", "", "Override record `directory`")

	if err := globalFlags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride:   *flagCwd,
		ConfigPath:        *flagConfig,
		RecordDirOverride: *flagRecordDir,
		Env:               env,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	ctx := context.Background()

	// No real Modbus/S7/OPC driver is in scope; the station's
	// actual transport is wired by the caller of the plcgateway.Gateway
	// interface this binary consumes. A fault-free in-memory pair stands
	// in here so the orchestrator is runnable end-to-end for demos,
	// seeding, and benchmarks.
	testPLC := plcgateway.NewFake()
	targetPLC := plcgateway.NewFake()

	orch, err := cli.New(ctx, cfg, testPLC, targetPLC)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}
	defer orch.Close()

	args := append([]string{"fatorch"}, globalFlags.Args()...)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	return cli.Run(orch, os.Stdout, os.Stderr, args, sigCh)
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point for a single fatorch invocation. Returns
// an exit code. sigCh can be nil if signal handling is not needed (e.g.
// in tests). Grounded on internal/cli/run.go's global-flag parsing,
// signal-driven graceful shutdown, and help formatting — all kept
// verbatim in shape, generalized from ticket subcommands to the FAT
// operator command table built by allCommands.
func Run(orch *Orchestrator, out, errOut io.Writer, args []string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("fatorch", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	commands := allCommands(orch)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		if exitCode != 0 {
			return exitCode
		}

		return cmdIO.Finish()
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

// allCommands returns every operator command in display order, per
// the full command surface. Dependencies are captured via
// closures over the one Orchestrator each command operates against.
func allCommands(orch *Orchestrator) []*Command {
	return []*Command{
		ConsoleCmd(orch),
		ImportCmd(orch),
		AllocateCmd(orch),
		ClearAllocationCmd(orch),
		BatchesCmd(orch),
		ConfirmWiringCmd(orch),
		SkipModulesCmd(orch),
		StartTestCmd(orch),
		PauseCmd(orch),
		ResumeCmd(orch),
		CancelCmd(orch),
		RetestCmd(orch),
		OpenManualTestCmd(orch),
		ConfirmSubItemCmd(orch),
		FailSubItemCmd(orch),
		CloseManualTestCmd(orch),
		ExportResultsCmd(orch),
		RestoreBatchCmd(orch),
		DeleteBatchCmd(orch),
		ListRecordsCmd(orch),
		ShowConfigCmd(orch),
		RepairCmd(orch),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: fatorch [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'fatorch --help' for a list of commands, or 'fatorch console' for an interactive session.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "fatorch - factory acceptance test orchestrator")
	fprintln(w)
	fprintln(w, "Usage: fatorch [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'fatorch console' for an interactive session that keeps the")
	fprintln(w, "channel set and scheduler state alive across commands.")
}

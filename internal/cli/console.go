package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"
)

// ConsoleCmd starts the interactive operator console: a liner-based REPL
// that re-dispatches each line into the same command table against one
// live Orchestrator, so batch wiring, the scheduler, and manual-test
// sessions all persist across the operator's commands for the run's
// lifetime — unlike every other command here, which only sees the
// channel set that exists within its own process invocation. Adapted
// from cmd/sloty's liner REPL loop (read line, tokenize, dispatch,
// append history), generalized from slotcache subcommands to the FAT
// operator command table, wiring in
// github.com/peterh/liner.
func ConsoleCmd(orch *Orchestrator) *Command {
	return &Command{
		Flags: flag.NewFlagSet("console", flag.ContinueOnError),
		Usage: "console",
		Short: "Start an interactive operator session",
		Long:  "Run a REPL where batch, scheduler, and manual-test state persists across commands.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return runConsole(ctx, orch, io)
		},
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".fatorch_history")
}

func runConsole(ctx context.Context, orch *Orchestrator, cio *IO) error {
	commands := allCommands(orch)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var completions []string

		for name := range commandMap {
			if strings.HasPrefix(name, prefix) {
				completions = append(completions, name)
			}
		}

		return completions
	})

	if f, err := os.Open(historyFilePath()); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	cio.Println("fatorch console - type 'help' for commands, 'exit' to quit")

	for {
		input, err := line.Prompt("fatorch> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				cio.Println("bye")

				break
			}

			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		fields := strings.Fields(input)
		name, args := fields[0], fields[1:]

		if name == "exit" || name == "quit" {
			break
		}

		if name == "help" {
			printUsage(cio.out, commands)

			continue
		}

		cmd, ok := commandMap[name]
		if !ok {
			cio.ErrPrintln("unknown command:", name, "(type 'help' for a list)")

			continue
		}

		cmd.Run(ctx, cio, args)
	}

	if hf, err := os.Create(historyFilePath()); err == nil {
		_, _ = line.WriteHistory(hf)
		_ = hf.Close()
	}

	return nil
}

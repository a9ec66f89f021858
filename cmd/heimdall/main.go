// cmd/heimdall/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/madanlalit/heimdall/cmd"
	"github.com/madanlalit/heimdall/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
  heimdall - browser automation driven by an LLM
  Type a task to run it, "version", or "exit".

`

// Function variables for mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
			} else {
				osExit(1)
			}
		}
		return
	}

	if err := interactive(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// interactive reads one task or command per line until EOF or "exit".
func interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, banner)
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "heimdall > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		executeLine(ctx, line, out)
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Exiting heimdall.")
	return nil
}

// lineArgs turns a shell line into root command arguments. Anything that
// is not a known subcommand or flag is treated as a task for "run".
func lineArgs(line string) []string {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "run", "version", "help", "completion":
		return args
	}
	if strings.HasPrefix(args[0], "-") {
		return args
	}
	return []string{"run", line}
}

func executeLine(ctx context.Context, line string, out io.Writer) {
	// A fresh command tree per line keeps flags from leaking between runs.
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(lineArgs(line))
	rootCmd.SetOut(out)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

// handlePanic flushes logs and writes the stack to panic.log before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "heimdall crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}

// File: cmd/autopilot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/autopilot-cli/cmd"
	"github.com/xkilldash9x/autopilot-cli/internal/agent"
	"github.com/xkilldash9x/autopilot-cli/internal/observability"
)

const panicLogFile = "panic.log"

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

// main is the entry point of the application.
func main() {
	defer handlePanic()

	// SIGINT is not listed here: the run command turns it into an interrupt of
	// the agent loop instead of cancelling everything.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps the result of a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, agent.ErrInterrupted):
		return 130
	case errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

// handlePanic records an unrecovered panic in panicLogFile and exits non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		// Ensure logs are flushed before proceeding.
		observability.Sync()

		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
			// If logging fails, print to stderr as a fallback.
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(2)
			return // Return facilitates testing when osExit is mocked.
		}

		fmt.Fprintf(os.Stderr, "\nautopilot crashed. Details logged to %s\n", panicLogFile)
		osExit(2)
	}
}

// ./main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/cookiebot/cmd"
	"github.com/xkilldash9x/cookiebot/internal/observability"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// main is the entry point for the cookiebot CLI.
func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the context; every loop stops at its next
	// suspension point and browser sessions are released on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(cmd.ExitCode(cmd.Execute(ctx)))
}

// handlePanic flushes logs and records the stack before exiting non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, debug.Stack())
		osExit(2)
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/planfix/planfix/cmd"
	"github.com/planfix/planfix/internal/observability"
)

// main wires signal handling around the CLI so an interrupted generation
// exits cleanly.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

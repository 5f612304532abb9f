package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"alloctrack/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(os.Getenv).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

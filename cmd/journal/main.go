package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/erauner12/journalsync/internal/client/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.New().Command().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

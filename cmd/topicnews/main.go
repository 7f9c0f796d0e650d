package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/topicnews/internal/app"
	"github.com/deusflow/topicnews/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("topicnews stopped", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/ossdesk/ossdesk/config"
	"github.com/ossdesk/ossdesk/internal/app"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	instance := app.NewApp(cfg)
	if err := instance.Initialize(); err != nil {
		log.Fatalf("Failed to initialize worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := instance.Run(ctx)
	if err := instance.Shutdown(); err != nil {
		instance.Logger().Error(err.Error())
	}
	if runErr != nil && ctx.Err() == nil {
		log.Fatalf("Worker exited with error: %v", runErr)
	}
}

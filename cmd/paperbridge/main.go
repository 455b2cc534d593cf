// Command paperbridge runs the analysis gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	paperbridge "github.com/paperbridge/paperbridge"
	"github.com/paperbridge/paperbridge/config"
	"github.com/paperbridge/paperbridge/handlers"
	"github.com/paperbridge/paperbridge/schemas"
)

const shutdownGrace = 10 * time.Second

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := paperbridge.NewDefaultLogger(schemas.LogLevel(cfg.LogLevel))

	gateway, err := paperbridge.Init(cfg, logger)
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}

	server := handlers.NewServer(cfg, gateway, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(fmt.Sprintf("received %s, shutting down", sig))
	case err := <-errCh:
		if err != nil {
			logger.Error(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error(err)
	}
	gateway.Shutdown()
}

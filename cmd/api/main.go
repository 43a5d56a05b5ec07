// Package main provides the API server entry point.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/liverty-music/actcache/internal/di"
)

func main() {
	if err := run(); err != nil {
		log.Printf("server failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	log.Println("starting server...")

	app, err := di.InitializeApp(ctx)
	if err != nil {
		return err
	}

	errCh := app.Start(ctx)

	select {
	case <-ctx.Done():
		log.Println("received shutdown signal, stopping server gracefully...")
	case err := <-errCh:
		log.Printf("server failed to start: %v", err)
		return app.Shutdown(context.Background())
	}

	return app.Shutdown(context.Background())
}

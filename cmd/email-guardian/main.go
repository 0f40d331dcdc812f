package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/di"
	"github.com/mikey/email-guardian/internal/server"
	"github.com/mikey/email-guardian/internal/storage"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	srv *server.Server,
	provider core.OpinionProvider,
	store storage.Store,
) error {
	defer logger.Sync()

	// Start the HTTP server
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Drain in-flight requests
	if err := srv.Stop(); err != nil {
		logger.Error("Failed to stop server", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close opinion provider", zap.Error(err))
		}
	}

	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Storage.Path, "db", cfg.Storage.Path, "SQLite database path")
	flag.StringVar(&cfg.Modules.Dir, "modules", cfg.Modules.Dir, "Game module directory")
	flag.StringVar(&cfg.Modules.URL, "modules-url", cfg.Modules.URL, "Game module host")
	flag.StringVar(&cfg.Entries.Dir, "entries", cfg.Entries.Dir, "Default entry directory")
	flag.IntVar(&cfg.Scheduler.MaxConcurrency, "concurrency", cfg.Scheduler.MaxConcurrency, "Concurrent games (0 picks from CPU count)")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode")
	flag.Parse()

	if cfg.Logging.Development && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

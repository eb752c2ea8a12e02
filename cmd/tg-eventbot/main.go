package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg-eventbot/internal/bot"
	"tg-eventbot/internal/config"
	"tg-eventbot/internal/handler"
	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/platform/telegram"
	"tg-eventbot/internal/scheduler"
	"tg-eventbot/internal/storage"
)

func main() {
	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging first
	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	// Initialize database if enabled
	if cfg.Database.Enabled {
		if err := storage.Initialize(cfg); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		log.Println("Database connection established")
	}

	// Open the state store and load the persisted document
	store, err := storage.OpenStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	state, err := store.Load()
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize bot with configuration
	botService, server, err := bot.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize bot: %v", err)
	}

	// Wire the platform client and the event scheduler
	client, err := telegram.NewClient(botService.Bot)
	if err != nil {
		log.Fatalf("Failed to initialize platform client: %v", err)
	}
	events := scheduler.New(state, store, client)

	// Initialize handler with its collaborators
	handler.Initialize(events, client)

	// Start HTTP server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(500 * time.Millisecond)
	log.Println("HTTP server is ready, starting bot handler...")

	// Setup and start message handlers
	handler.SetupMessageHandlers(botService.Handler, botService.Bot)
	events.Start(ctx)
	botService.Start()

	// Create a channel for receiving OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, os.Kill, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Printf("Received signal: %v, shutting down...", sig)

	// Gracefully shutdown server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	events.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("State store close error: %v", err)
	}

	log.Println("Server gracefully stopped")
}

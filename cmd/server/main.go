package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"gameroom-lab/auth"
	"gameroom-lab/internal"
	"gameroom-lab/logs"
	"gameroom-lab/repositories"
	"gameroom-lab/runtime"
	"gameroom-lab/runtime/workers"
	"gameroom-lab/search"
	"gameroom-lab/sink"
	"gameroom-lab/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before exit.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.FromLevelString(config.LogLevel)

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Storage (BadgerDB + Bluge index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.NewMessageIndex(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Repositories
	characterStore := repositories.NewCharacterStore(db, log)
	encounterRepository := repositories.NewEncounterRepository(db, log)
	chatArchive := repositories.NewChatArchive(db, log, config.LimitMessages)

	// 4. Supervision & Coordination
	sup := workers.NewSupervisor(log)
	registry := runtime.NewRegistry()

	coordinator := runtime.NewCoordinator(
		log, sup, registry,
		characterStore, encounterRepository, index,
		config.BufferSize, charReplacement,
	)
	coordinator.Add(sink.NewArchiveSink(chatArchive, log), index)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = coordinator.Start(ctx); err != nil {
		return fmt.Errorf("coordinator failed to start: %w", err)
	}

	if config.EnableDebugServer {
		internal.StartDebugServer(db, config.DebugPort, nil, nil)
		log.Info("Debug server started", "port", config.DebugPort)
	}

	// 6. Websocket server
	tokens := auth.NewTokenService([]byte(config.JWTSecret), config.JWTIssuer, config.AuthTokenDuration)
	handler := ws.NewHandler(coordinator, registry, tokens, config.ConnectionBufferSize, log)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})
	app.Use(recover.New())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	handler.Register(app)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	_ = app.Shutdown()
	coordinator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

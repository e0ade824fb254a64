package main

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"rodina-chat/contract"
	"rodina-chat/internal"
	"rodina-chat/moderation"
	"rodina-chat/observability"
	"rodina-chat/realtime"
	"rodina-chat/repositories"
	"rodina-chat/runtime"
	"rodina-chat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes
// error reporting, so every deferred cleanup (like the database close) executes
// before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	maskRune, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, moderation and the fan-out registry
	presence := repositories.NewPresenceRepository(db)
	conversations := repositories.NewConversationRepository(db, log, config.LimitMessages)
	users := repositories.NewUserRepository(db)
	registry := runtime.NewRegistry(log, config.DeliveryTimeout)

	moderator, err := moderation.NewDefaultModerator(maskRune)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 4. Websocket endpoint & telemetry
	monitor := observability.NewMonitor(log)
	newSession := func(userID string, sink contract.Sink) services.ISession {
		return services.NewSession(log, userID, presence, conversations, users, registry, sink, moderator)
	}
	handler := realtime.NewHandler(log, realtime.QueryIdentityResolver, newSession, config.ConnectionBufferSize, monitor)

	mux := http.NewServeMux()
	mux.Handle("/ws/chat", handler)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go monitor.Run(ctx, config.MetricInterval)
	if config.DebugPort != nil {
		internal.StartDebugServer(db, *config.DebugPort, nil, monitor.Stats)
		log.Info("Debug inspector started", "port", *config.DebugPort)
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	// Use an error channel to capture ListenAndServe issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/jpaullopes/sensorflow-server/internal/auth"
	"github.com/jpaullopes/sensorflow-server/internal/config"
	"github.com/jpaullopes/sensorflow-server/internal/hub"
	"github.com/jpaullopes/sensorflow-server/internal/ingest"
	"github.com/jpaullopes/sensorflow-server/internal/logging"
	"github.com/jpaullopes/sensorflow-server/internal/server"
	"github.com/jpaullopes/sensorflow-server/internal/storage"
)

// referenceTimezone is the fixed timezone readings are stamped in.
const referenceTimezone = "America/Sao_Paulo"

func setupStorage(cfg *config.Config, state *storage.ConnState) *storage.Store {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not defined. The application will continue without saving data.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Could not connect to the database; continuing without persistence", "error", err)
		return nil
	}

	state.MarkConnected()
	return store
}

func logCredentialWarnings(cfg *config.Config) {
	if cfg.IngestAPIKey == "" {
		slog.Warn("API_KEY (ingest) not defined. The ingest endpoint will reject every request.")
	}
	if cfg.SubscribeAPIKey == "" {
		slog.Warn("API_KEY_WS (subscribe) not defined. The WebSocket endpoint will reject every connection.")
	}
	if cfg.MaxConnsPerKey == 0 {
		slog.Info("WebSocket connections are unlimited per API key")
	} else {
		slog.Info("WebSocket connections limited per API key", "max_connections", cfg.MaxConnsPerKey)
	}
}

func runGracefulShutdown(srv *server.Server, subHub *hub.Hub, store *storage.Store) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		subHub.Stop()

		if store != nil {
			store.Close()
		}

		close(done)
	}()

	return done
}

func main() {
	// Missing .env is fine; real deployments configure the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	logCredentialWarnings(cfg)

	location, err := time.LoadLocation(referenceTimezone)
	if err != nil {
		log.Fatalf("Failed to load reference timezone %s: %v", referenceTimezone, err)
	}

	clock := clockwork.NewRealClock()
	state := storage.NewConnState()
	store := setupStorage(cfg, state)

	subHub := hub.New(cfg.MaxConnsPerKey, clock)

	gate := auth.NewGate(cfg.IngestAPIKey, cfg.SubscribeAPIKey)

	var sink ingest.Store
	if store != nil {
		sink = store
	}
	ingestSvc := ingest.NewService(sink, state, subHub, clock, location)

	var pinger interface {
		Ping(ctx context.Context) error
	}
	if store != nil {
		pinger = store
	}
	srv := server.NewServer(cfg, gate, ingestSvc, subHub, state, pinger)

	done := runGracefulShutdown(srv, subHub, store)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

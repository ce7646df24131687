// Package main is the entry point for the event series server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/api"
	"github.com/eventseries/backend/internal/calendar"
	"github.com/eventseries/backend/internal/config"
	"github.com/eventseries/backend/internal/events"
	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/logging"
	"github.com/eventseries/backend/internal/series"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "/data/config.yaml", "Path to the YAML configuration file")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	dataDir := flag.String("data", "", "Data directory for the SQLite database (overrides config)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	// Health check mode for container HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogPretty)
	zerolog.DefaultContextLogger = &log

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("version", version).Str("listen", cfg.Listen).Msg("Starting event series server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %q: %w", cfg.DataDir, err)
	}
	db, err := storage.NewDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db, log); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	eventRepo := storage.NewEventRepository(db)
	overrideRepo := storage.NewOverrideRepository(db)
	feedRepo := storage.NewFeedRepository(db)

	resolver := instance.NewResolver(eventRepo, overrideRepo, instance.Config{
		Horizon:        cfg.Horizon(),
		MaxOccurrences: cfg.MaxOccurrences,
	}, log)
	manager := series.NewManager(eventRepo, log)

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	notifier := events.Multi{websocket.NewEventBroadcaster(hub, log)}
	if cfg.RedisURL != "" {
		client, err := events.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		notifier = append(notifier, events.NewRedisPublisher(client, cfg.RedisChannel, log))
		log.Info().Str("channel", cfg.RedisChannel).Msg("Publishing events to Redis")
	}

	syncService := calendar.NewSyncService(feedRepo, eventRepo, overrideRepo, calendar.NewParser(log), log)
	scheduler := calendar.NewScheduler(syncService, feedRepo, notifier, cfg.FeedSyncIntervalMin, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to start feed scheduler")
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.Services{
		DB:        db,
		Events:    eventRepo,
		Feeds:     feedRepo,
		Resolver:  resolver,
		Series:    manager,
		Hub:       hub,
		Scheduler: scheduler,
		Notifier:  notifier,
		Log:       log,
	})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("Server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(listen string) error {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + host + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/app"
	"github.com/raaihank/fin-sentinel/internal/config"
	"github.com/raaihank/fin-sentinel/internal/logger"
	"github.com/raaihank/fin-sentinel/internal/ratelimit"
	"github.com/raaihank/fin-sentinel/internal/server"
	"github.com/raaihank/fin-sentinel/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		envFile     = flag.String("env-file", ".env", "Path to .env file (ignored if missing)")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this base URL and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("fin-sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	// Variables already set in the environment win over the .env file.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting fin-sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", loader.ConfigFile()),
	)

	components, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Warn("Failed to release components", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ratelimit.New(rateLimitConfig(cfg))
	go limiter.Run(ctx)

	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastFindings:    cfg.WebSocket.Events.BroadcastFindings,
			BroadcastVerdicts:    cfg.WebSocket.Events.BroadcastVerdicts,
			BroadcastIngest:      cfg.WebSocket.Events.BroadcastIngest,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
			AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
		}, log.WithComponent("websocket").Logger)
		go hub.Run(ctx)
	}

	srv, err := server.New(cfg, log, server.Dependencies{
		Assistant: components.Assistant,
		Ingest:    components.Ingest,
		Hub:       hub,
		Limiter:   limiter,
	})
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if loader.ConfigFile() != "" {
		loader.Watch(log.Logger, func(next *config.Config) {
			applyReload(log, limiter, cfg, next)
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		log.Info("Server shutdown complete")
	}
}

func rateLimitConfig(cfg *config.Config) ratelimit.Config {
	return ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
}

// applyReload hot-applies the log level and the rate limit. Everything else,
// the salt included, needs a restart.
func applyReload(log *logger.Logger, limiter *ratelimit.Limiter, current, next *config.Config) {
	if err := log.SetLevel(next.Logging.Level); err != nil {
		log.Warn("Invalid log level in reloaded config", zap.Error(err))
	} else {
		log.Info("Log level updated", zap.String("level", next.Logging.Level))
	}

	limiter.Update(rateLimitConfig(next))
	log.Info("Rate limit updated",
		zap.Bool("enabled", next.RateLimit.Enabled),
		zap.Float64("requests_per_second", next.RateLimit.RequestsPerSecond),
		zap.Int("burst", next.RateLimit.Burst))

	if next.Privacy.Salt != current.Privacy.Salt {
		log.Warn("Privacy salt changed; restart required for it to take effect")
	}
}

// performHealthCheck performs a health check against a running server
func performHealthCheck(baseURL string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}

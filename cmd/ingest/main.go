package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/app"
	"github.com/raaihank/fin-sentinel/internal/config"
	"github.com/raaihank/fin-sentinel/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		envFile    = flag.String("env-file", ".env", "Path to .env file (ignored if missing)")
		inputFile  = flag.String("input", "", "Statement file to ingest (CSV, JSON lines or Parquet)")
		batchSize  = flag.Int("batch-size", 0, "Embedding batch size (0 uses the configured value)")
		reset      = flag.Bool("reset", false, "Empty the index before ingesting, or on its own")
		showStats  = flag.Bool("stats", false, "Show index statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*reset && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input statement.csv --reset\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input statement.parquet --batch-size 128\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.Ingest.BatchSize = *batchSize
	}

	log, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Retrieval.Backend == "memory" {
		log.Warn("Memory backend selected; the index is discarded when this command exits")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	if err := run(ctx, cfg, log, *inputFile, *reset, *showStats); err != nil {
		log.Error("Ingestion command failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, input string, reset, showStats bool) error {
	components, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Close()

	switch {
	case input != "":
		result, err := components.Ingest.IngestFile(ctx, input, reset)
		if err != nil {
			return err
		}
		return printJSON(result)

	case reset && !showStats:
		if err := components.Ingest.Reset(ctx); err != nil {
			return err
		}
		log.Info("Index reset")
		return nil

	default:
		if reset {
			if err := components.Ingest.Reset(ctx); err != nil {
				return err
			}
		}
		stats, err := components.Ingest.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

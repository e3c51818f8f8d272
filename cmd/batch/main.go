package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/compliance-sentinel/internal/batch"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"github.com/raaihank/compliance-sentinel/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, JSON lines, or Parquet)")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (default from config)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
		reportPath = flag.String("report", "", "Write the report to this file instead of stdout")
		format     = flag.String("format", "json", "Report format: json or yaml")
		dryRun     = flag.Bool("dry-run", false, "Check records without writing them to the store")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -input posts.csv -batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input posts.parquet -workers 8 -format yaml -report report.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input posts.jsonl -dry-run\n", os.Args[0])
		os.Exit(1)
	}

	if *format != "json" && *format != "yaml" {
		fmt.Fprintf(os.Stderr, "Invalid report format %q (must be json or yaml)\n", *format)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so a report on stdout stays parseable
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Stderr: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, *inputFile, *batchSize, *workers, *reportPath, *format, *dryRun); err != nil {
		log.Fatal("Batch check failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logger.Logger, inputFile string, batchSize, workers int, reportPath, format string, dryRun bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling batch check...")
		cancel()
	}()

	if _, err := os.Stat(inputFile); err != nil {
		return fmt.Errorf("input file is not readable: %w", err)
	}

	engine, err := compliance.New(cfg.Engine, log)
	if err != nil {
		return fmt.Errorf("failed to build compliance engine: %w", err)
	}

	var saver batch.Saver
	if cfg.Store.Enabled && !dryRun {
		recordStore, err := store.Open(ctx, cfg.Store, log)
		if err != nil {
			return fmt.Errorf("failed to open record store: %w", err)
		}
		defer recordStore.Close()
		saver = recordStore
	}

	options := batch.Options{
		BatchSize:        cfg.Batch.BatchSize,
		WorkerCount:      cfg.Batch.WorkerCount,
		ProgressReport:   cfg.Batch.ProgressReport,
		ValidateData:     cfg.Batch.ValidateData,
		MaxContentLength: cfg.Server.MaxContentLength,
		DryRun:           dryRun,
	}
	if batchSize > 0 {
		options.BatchSize = batchSize
	}
	if workers > 0 {
		options.WorkerCount = workers
	}

	pipeline := batch.NewPipeline(engine, saver, nil, options, log)
	report, runErr := pipeline.ProcessFile(ctx, inputFile)
	if report == nil {
		return runErr
	}

	out := os.Stdout
	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := report.Write(out, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if len(report.Errors) > 0 {
		log.Warn("Batch check completed with skipped rows or persistence errors",
			zap.Int64("invalid", report.Invalid),
			zap.Int64("persist_failed", report.PersistFailed))
	}

	return runErr
}

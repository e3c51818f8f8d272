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

	"github.com/raaihank/compliance-sentinel/internal/cache"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/logger"
	"github.com/raaihank/compliance-sentinel/internal/metrics"
	"github.com/raaihank/compliance-sentinel/internal/scheduler"
	"github.com/raaihank/compliance-sentinel/internal/server"
	"github.com/raaihank/compliance-sentinel/internal/store"
	"github.com/raaihank/compliance-sentinel/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("Compliance-Sentinel %s (commit: %s, built: %s, rules: %s)\n", version, commit, date, compliance.RulesVersion)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Compliance-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("rules_version", compliance.RulesVersion),
		zap.Int("port", cfg.Server.Port),
	)

	if err := config.Watch(func(updated *config.Config) {
		if err := log.SetLevel(updated.Logging.Level); err != nil {
			log.Warn("Failed to apply log level", zap.Error(err))
			return
		}
		log.Info("Configuration reloaded", zap.String("log_level", updated.Logging.Level))
	}, func(err error) {
		log.Warn("Configuration reload rejected", zap.Error(err))
	}); err != nil {
		log.Debug("Configuration hot reload disabled", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := compliance.New(cfg.Engine, log)
	if err != nil {
		log.Fatal("Failed to build compliance engine", zap.Error(err))
	}

	collector := metrics.NewCollector(cfg.Metrics, nil)

	hub := websocket.NewHub(cfg.WebSocket, log)
	hub.OnClientCountChange(collector.SetWebSocketClients)

	deps := server.Dependencies{
		Engine:  engine,
		Metrics: collector,
		Hub:     hub,
		Version: version,
	}

	var recordStore *store.SQLStore
	if cfg.Store.Enabled {
		recordStore, err = store.Open(ctx, cfg.Store, log)
		if err != nil {
			log.Fatal("Failed to open record store", zap.Error(err))
		}
		defer recordStore.Close()
		deps.Store = recordStore
	}

	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(ctx, cfg.Cache, log)
		if err != nil {
			// Checks still work without the cache.
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer resultCache.Close()
			deps.Cache = resultCache
		}
	}

	srv, err := server.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	jobs := scheduler.New(log)
	for _, job := range backgroundJobs(cfg, srv, recordStore, log) {
		if err := jobs.Add(ctx, job); err != nil {
			log.Fatal("Failed to schedule job", zap.String("job", job.Name), zap.Error(err))
		}
	}
	jobs.Start(ctx)

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
	}

	cancel()
	jobs.Stop()
	log.Info("Server shutdown complete")
}

// newLogger builds the process logger from the logging section
func newLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
	}

	if cfg.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.File.Enabled,
			Path:    cfg.File.Path,
		}
	}

	return logger.New(loggerConfig)
}

// backgroundJobs lists the cron jobs of the service. Jobs with an empty
// schedule are skipped by the scheduler.
func backgroundJobs(cfg *config.Config, srv *server.Server, recordStore *store.SQLStore, log *logger.Logger) []scheduler.Job {
	jobs := []scheduler.Job{
		{
			Name:     "system-status",
			Schedule: cfg.Scheduler.StatusSchedule,
			Run: func(context.Context) error {
				srv.BroadcastStatus()
				return nil
			},
		},
		{
			Name:     "rate-limit-cleanup",
			Schedule: cfg.Scheduler.CleanupSchedule,
			Run: func(context.Context) error {
				if removed := srv.Limiter().CleanupOldBuckets(); removed > 0 {
					log.Debug("Removed idle rate limit buckets", zap.Int("removed", removed))
				}
				return nil
			},
		},
	}

	if recordStore != nil {
		jobs = append(jobs, scheduler.Job{
			Name:     "record-retention",
			Schedule: cfg.Scheduler.RetentionSchedule,
			Run: func(ctx context.Context) error {
				cutoff := time.Now().Add(-cfg.Scheduler.RetentionPeriod)
				deleted, err := recordStore.DeleteBefore(ctx, cutoff)
				if err != nil {
					return err
				}
				log.Info("Pruned old check records",
					zap.Int64("deleted", deleted),
					zap.Time("cutoff", cutoff))
				return nil
			},
		})
	}

	return jobs
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
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
	os.Exit(0)
}

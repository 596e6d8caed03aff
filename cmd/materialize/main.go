// Command materialize creates the missing occurrences of every recurring
// expense. It runs once, or periodically with -interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookkeeper/internal/backend"
	"bookkeeper/internal/config"
	"bookkeeper/internal/core"
	applog "bookkeeper/internal/log"
	"bookkeeper/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	upTo := flag.String("up-to", "", "materialize occurrences dated on or before this day (YYYY-MM-DD); defaults to the end of the current month")
	interval := flag.Duration("interval", 0, "repeat every interval until interrupted; 0 runs once")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration validation failed:", err)
		os.Exit(1)
	}
	level, _ := applog.ParseLevel(cfg.LogLevel)
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentRecurring,
		Format:    cfg.LogFormat,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	var fixed core.Date
	if *upTo != "" {
		d, err := core.ParseDate(*upTo)
		if err != nil {
			logger.Error("Invalid -up-to", "error", err)
			os.Exit(1)
		}
		fixed = d
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer result.Cleanup()

	svc := services.NewRecurringService(result.Store, result.Publisher, nil)

	horizon := func(now time.Time) core.Date {
		if !fixed.IsEmpty() {
			return fixed
		}
		return core.DateOf(now).EndOfMonth()
	}
	process := func(now time.Time) {
		limit := horizon(now)
		count, err := svc.MaterializeAll(ctx, limit)
		if err != nil {
			logger.Error("Materialization failed", "error", err, applog.FieldUpTo, limit.String())
			return
		}
		logger.Info("Materialization complete",
			applog.FieldCount, count,
			applog.FieldUpTo, limit.String())
	}

	process(time.Now())
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, stopping materializer")
			return
		case now := <-ticker.C:
			process(now)
		}
	}
}

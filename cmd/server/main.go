package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/flowsched/internal/backend"
	"github.com/me/flowsched/internal/config"
	"github.com/me/flowsched/internal/logging"
	"github.com/me/flowsched/internal/manager"
	"github.com/me/flowsched/internal/server"
	"github.com/me/flowsched/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")

	var flagAddr, flagLogLevel, flagLogFormat, flagDB, flagBackend string
	flag.StringVar(&flagAddr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")
	flag.StringVar(&flagDB, "db", "", "Database path (default ~/.flowsched/flowsched.db)")
	flag.StringVar(&flagBackend, "backend", "", "Execution backend: local, gridengine")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the config file.
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", filepath.Dir(cfg.DBPath), err)
			os.Exit(1)
		}
	}

	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	be, err := backend.New(cfg.Backend, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create backend: %v\n", err)
		os.Exit(1)
	}
	logger.Info("backend ready", "backend", be.Name())

	m := manager.New(st, be, manager.Config{
		JobLimit:        cfg.Scheduling.JobLimit,
		MaxAttempts:     cfg.Scheduling.MaxAttempts,
		RetryBackoff:    cfg.Scheduling.RetryBackoff.Std(),
		RetryBackoffMax: cfg.Scheduling.RetryBackoffMax.Std(),
		PollInterval:    cfg.Scheduling.PollInterval.Std(),
		JobPrefix:       cfg.Scheduling.JobPrefix,
	}, logger)

	srv := server.New(cfg, m, be, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Jobs persisted before a restart are picked up again by the monitor.
	srv.StartMonitor(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

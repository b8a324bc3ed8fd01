package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/meetsync/internal/config"
	"github.com/iudanet/meetsync/internal/server"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "meetsync.toml", "Path to config file (toml, yaml or json)")
	addr := flag.String("addr", "", "Listen address, overrides server.addr")
	dbPath := flag.String("db", "", "Path to SQLite database, overrides server.db_path")
	guests := flag.Bool("guests", false, "Allow anonymous clients")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}
	if *guests {
		cfg.Server.GuestEnabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	loader := config.NewLoader(*configPath, logger)
	loader.OnChange(func(c *config.Config) {
		if l, err := config.ParseLevel(c.Logging.Level); err == nil {
			level.Set(l)
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch disabled", slog.Any("error", err))
	}

	err = run(cfg, logger)
	_ = loader.Close()
	if err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg.Server, logger, server.Options{Version: Version})
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("failed to close server", slog.Any("error", err))
		}
	}()

	logger.Info("MeetSync dev server starting",
		slog.String("version", Version),
		slog.String("addr", cfg.Server.Addr),
		slog.String("db", cfg.Server.DBPath),
		slog.Bool("guest_enabled", cfg.Server.GuestEnabled))

	return srv.Run(ctx)
}

func printVersion() {
	fmt.Printf("MeetSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/iudanet/meetsync/internal/client/app"
	"github.com/iudanet/meetsync/internal/client/cli"
	"github.com/iudanet/meetsync/internal/client/iocli"
	"github.com/iudanet/meetsync/internal/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	opts, err := docopt.ParseArgs(cli.Usage, os.Args[1:], versionString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts docopt.Opts) error {
	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if server, _ := opts.String("--server"); server != "" {
		cfg.Client.ServerURL = server
	}
	if db, _ := opts.String("--db"); db != "" {
		cfg.Client.DBPath = db
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// при долгом наблюдении уровень логирования меняется без перезапуска
	if watch, _ := opts.Bool("watch"); watch {
		loader := config.NewLoader(configPath, logger)
		if _, err := loader.Load(); err == nil {
			loader.OnChange(func(c *config.Config) {
				if l, err := config.ParseLevel(c.Logging.Level); err == nil {
					level.Set(l)
				}
			})
			if err := loader.Watch(); err != nil {
				logger.Warn("Config watch disabled", "error", err)
			}
			defer func() { _ = loader.Close() }()
		}
	}

	term := iocli.NewStdio()
	a, err := app.New(ctx, cfg.Client, cli.NewNavigator(term), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close client", "error", err)
		}
	}()

	return cli.New(a, term).Run(ctx, opts)
}

func versionString() string {
	return fmt.Sprintf("meetsync client\nVersion:    %s\nBuild Date: %s\nGit Commit: %s", Version, BuildDate, GitCommit)
}

// Package cmd implements the sitelens command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/app"
	"github.com/JakeFAU/sitelens/internal/config"
	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// App is the slice of the application the commands use. Tests substitute a
// mock through newApp.
type App interface {
	Run(ctx context.Context, urls []string) ingest.Report
	Search(ctx context.Context, rawURL string, k int) ([]ingest.Match, error)
	Publish(ctx context.Context, report ingest.Report)
	Close(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// loadConfig is swapped in tests to avoid touching the environment.
var loadConfig = config.Load

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sitelens",
		Short: "Screenshot, embed and index websites for visual similarity search.",
		Long: `sitelens renders websites in a headless browser, embeds the screenshots
with an image model and stores the vectors for nearest-neighbour search.
Parked and placeholder domains are filtered out before rendering.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadRuntime reads configuration, applies command-level overrides and
// builds the logger.
func loadRuntime(opts *rootOptions, override func(*config.Config)) (config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if override != nil {
		override(&cfg)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func closeApp(a App, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/workflow-runner/config"
	"github.com/upb/workflow-runner/internal/observability"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "workflow-runner",
	Short: "Run chained text-processing steps over an LLM fallback chain",
	Long: `workflow-runner executes ordered lists of text steps (clean, summarize,
extract key points, tag, sentiment, rewrite, title). AI-backed steps go
through a bounded chain of candidate models with optional local fallback.

Run "serve" for the HTTP API or "exec" to run a pipeline once.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override LOG_FORMAT (json or text)")

	rootCmd.AddCommand(serveCmd, execCmd, stepsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and builds the logger, applying flag overrides
func loadConfig(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Observability.LogFormat = logFormat
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

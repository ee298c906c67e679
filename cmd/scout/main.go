// Command scout is the operator CLI: one-off searches and analyses, batch
// scans, reply drafting and store maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docutag/scout/app"
	"github.com/docutag/scout/config"
)

var (
	configPath string
	verbose    bool
	timeout    time.Duration

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Find, analyse and answer social discussions about a keyword",
	Long: `scout searches Reddit and YouTube discussions for a keyword, classifies how
active the niche is, and drafts replies for the threads worth answering.

Configuration comes from --config (YAML) and the environment; see SCRAPERAPI_KEY,
RAPIDAPI_KEY, ANTHROPIC_API_KEY and DB_DSN.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("SCOUT_CONFIG", "scout.yaml"), "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "Overall command deadline")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// commandContext applies --timeout to the command's context
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cmdLogger returns the logger set up by the root command, or the default
// when a run function is called directly
func cmdLogger() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// readConfig loads the configuration without requiring search credentials
func readConfig() (*config.Config, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp loads and validates the configuration and builds every service
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(ctx, cfg, cmdLogger())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dahimi/File-Search-POC/internal/app"
	"github.com/Dahimi/File-Search-POC/pkg/config"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "dealroom",
	Short:         "Chat with deal documents indexed in Gemini File Search stores",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at info level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp reads the configuration and builds the service. Logs stay quiet
// unless --verbose is set so they do not mix with command output.
func loadApp() (*app.App, *config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := "warn"
	if verbose {
		level = "info"
	}
	if err := logger.Init(level, "console", "stderr"); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petems/live-classify/internal/config"
	"github.com/petems/live-classify/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// cfg is the effective config shared by subcommands
	cfg *config.Config
	log zerolog.Logger

	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "liveclassify",
	Short:        "Live image and sound classification from a webcam or microphone",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config from XDG/Library/AppData unless a path was given
		var err error
		if cfgPath != "" {
			cfg, err = config.LoadFrom(cfgPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		log = logging.NewWithLevel(cfg.LogLevel)
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.Version = fmt.Sprintf("%s (%s)", Version, Commit)
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

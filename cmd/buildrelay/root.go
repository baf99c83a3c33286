package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"buildrelay/internal/builder"
	"buildrelay/internal/config"
	"buildrelay/internal/logger"
	"buildrelay/internal/notify"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "buildrelay",
	Short: "buildrelay dispatches commits to a Jenkins server and reports results to chat.",
	Long: `buildrelay triggers parameterized Jenkins builds for repository branches,
skips commits carrying the configured skip marker, records build progress from
Jenkins callbacks and announces results to a chat room.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Init(config.GetLogLevel())
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(outputCmd)
}

// loadClient reads the configuration and builds the façade every subcommand works through
func loadClient() (*config.Config, *builder.Client, notify.Notifier, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	notifier := notify.New(cfg.Chat.WebhookURL, cfg.Chat.DefaultRoom)
	client, err := builder.New(cfg.Jenkins.URL, cfg.Jenkins.CallbackURL,
		builder.WithNotifier(notifier),
		builder.WithTimeout(time.Duration(cfg.Jenkins.Timeout)*time.Second),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize build client: %w", err)
	}
	return cfg, client, notifier, nil
}

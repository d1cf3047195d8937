package main

import (
	"fmt"
	"io"
	"os"

	"restobook/internal/config"
	"restobook/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "restobook",
		Short:         "Restaurant table scheduler: booking graph, broker gateway and tooling",
		Version:       fmt.Sprintf("%s (%s)", Version, CommitSHA),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "path to config.yaml")

	root.AddCommand(newSchedulerCmd(opts))
	root.AddCommand(newGatewayCmd(opts))
	root.AddCommand(newTablesCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newSweepCmd(opts))

	return root
}

// loadConfigAndLogger reads the config and builds the role logger. The closer may be nil.
func loadConfigAndLogger(opts *rootOptions, role string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = Version
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App, role)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

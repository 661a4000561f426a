package main

import (
	"github.com/spf13/cobra"

	"blind-voting/log"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ballotd",
		Short:        "Anonymous balloting with RSA blind signatures.",
		SilenceUsage: true,
	}
	addConfigFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newServeCmd(), newKeygenCmd(), newDemoCmd())
	return rootCmd
}

// setup loads the configuration and initializes the logger.
func setup(cmd *cobra.Command) (*ballotConfig, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log.Init(cfg.logLevel, "stderr")
	return cfg, nil
}

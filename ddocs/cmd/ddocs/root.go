package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ddocs",
	Short: "Fileverse document API with on-chain sync",
	Long: `ddocs serves the document REST API and MCP endpoint, and runs the
background workers that anchor document events on the ledger.`,
	Version:      "1.0.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/ddocs/config.yaml)")
}

func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded
	// Logs go to stderr so command output on stdout stays machine readable.
	logger = logging.NewWithWriter(os.Stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("ddocs"))
	logging.SetDefault(logger)
	return nil
}

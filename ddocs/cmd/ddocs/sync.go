package main

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "On-chain sync operations",
}

var syncRunCmd = &cobra.Command{
	Use:   "run <submit|resolve>",
	Short: "Run one sync trigger now",
	Long: `Runs a single submit or resolve batch and prints its report. The trigger may
be named or given by its cron expression ("*/2 * * * *", "*/1 * * * *").`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.scheduler.Fire(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	syncCmd.AddCommand(syncRunCmd)
	rootCmd.AddCommand(syncCmd)
}

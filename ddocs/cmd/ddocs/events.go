package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and retry sync events",
}

var eventsFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List failed events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		portal, _ := cmd.Flags().GetString("portal")
		format, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.svc.ListFailedEvents(cmd.Context(), portal)
		if err != nil {
			return err
		}
		return writeEvents(cmd.OutOrStdout(), format, events)
	},
}

var eventsRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Move failed events back to pending",
	Long:  "Retries one failed event by id, or every failed event with --all.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portal, _ := cmd.Flags().GetString("portal")
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return errors.New("give either an event id or --all")
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if all {
			n, err := a.svc.RetryAllFailed(cmd.Context(), portal)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "retried %d events\n", n)
			return nil
		}

		ok, err := a.svc.RetryEvent(cmd.Context(), portal, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("event %s not found or not in failed state", args[0])
		}
		fmt.Fprintf(out, "event %s queued for retry\n", args[0])
		return nil
	},
}

func writeEvents(w io.Writer, format string, events []*models.Event) error {
	return render(w, format, events, func() *table {
		t := newTable("ID", "TYPE", "PORTAL", "FILE", "VERSION", "ATTEMPTS", "UPDATED", "ERROR")
		for _, e := range events {
			t.addRow(
				e.ID,
				string(e.Type),
				e.PortalAddress,
				e.FileID,
				strconv.Itoa(e.Version),
				strconv.Itoa(e.Attempts),
				e.UpdatedAt.Format(time.RFC3339),
				e.LastError,
			)
		}
		return t
	})
}

func init() {
	eventsCmd.PersistentFlags().String("portal", "", "limit to one portal address (default: all)")
	eventsFailedCmd.Flags().StringP("output", "o", formatTable, "output format: table, json, yaml")
	eventsRetryCmd.Flags().Bool("all", false, "retry every failed event")

	eventsCmd.AddCommand(eventsFailedCmd, eventsRetryCmd)
	rootCmd.AddCommand(eventsCmd)
}

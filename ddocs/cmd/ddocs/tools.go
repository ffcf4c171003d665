package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the MCP tool catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		catalog := mcp.MustDefaultCatalog()
		out := cmd.OutOrStdout()

		switch format {
		case formatJSON:
			return writeJSON(out, catalog.Tools())
		case formatYAML:
			return writeYAML(out, catalog.Tools())
		case formatTable, "":
			_, err := fmt.Fprint(out, catalog.Summary())
			return err
		default:
			return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
		}
	},
}

func init() {
	toolsCmd.Flags().StringP("output", "o", formatTable, "output format: table, json, yaml")
	rootCmd.AddCommand(toolsCmd)
}

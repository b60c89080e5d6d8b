// Package app provides the entry point for the synthetic users API application.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/synthetic-users-api/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "users-api",
	DisableAutoGenTag: true,
	Short:             "Synthetic users API server",
	Long: `Synthetic users API server generates a large in-memory dataset of fake users once
and serves it through a paginated, searchable and sortable REST API.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

// NewRootCmd creates a new root command for the users API.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to read format flag: %w", err)
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info as JSON: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return err
		}

		slog.Info("users-api version",
			"version", info.Version,
			"commit", info.Commit,
			"built", info.BuildDate,
			"go", info.GoVersion,
			"platform", info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}

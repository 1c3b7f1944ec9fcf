package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

func newSnapshotCmd() *cobra.Command {
	var noColumns, noStatistics, forceFresh bool

	cmd := &cobra.Command{
		Use:   "snapshot <connection-id>",
		Short: "Print the integrated metadata snapshot for a connection",
		Long: `Integrate tables, columns and statistics for one connection and print the
result as JSON.

Examples:
  # Full snapshot from the configured source
  ekaya-dq snapshot warehouse

  # Tables only, bypassing source caches
  ekaya-dq snapshot warehouse --no-columns --no-statistics --force-fresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			opts := models.IntegrationOptions{
				IncludeColumns:    !noColumns,
				IncludeStatistics: !noStatistics,
				ForceFresh:        forceFresh,
			}
			result, err := a.service.GetIntegratedMetadata(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("tables unavailable: %s", strings.Join(result.Errors, "; "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColumns, "no-columns", false, "skip the columns fetch")
	cmd.Flags().BoolVar(&noStatistics, "no-statistics", false, "skip the statistics fetch")
	cmd.Flags().BoolVar(&forceFresh, "force-fresh", false, "ask the source to bypass its caches")
	return cmd
}

func newTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table <connection-id> <table>",
		Short: "Print one table with its columns and statistics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.service.GetEnhancedTableInfo(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phrazzld/strata/internal/service/export"
)

// ExportCmd creates and returns the export command
func ExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export resolved configuration to a file",
		Long: "Export the materialized configuration of a scope as JSON or YAML.\n" +
			"The format follows the output file extension (.yaml/.yml for YAML, JSON otherwise).\n" +
			"Sensitive values are masked unless --include-sensitive is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			workspace, _ := cmd.Flags().GetString("workspace")
			category, _ := cmd.Flags().GetString("category")
			configured, _ := cmd.Flags().GetBool("configured")
			includeSensitive, _ := cmd.Flags().GetBool("include-sensitive")

			workspaceID, err := parseWorkspaceFlag(workspace)
			if err != nil {
				return err
			}

			e, err := setupEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			opts := export.DefaultOptions()
			opts.WorkspaceID = workspaceID
			opts.Category = category
			opts.ConfiguredOnly = configured
			opts.IncludeSensitive = includeSensitive

			data, err := e.exporter.Export(context.Background(), opts, export.FormatFromPath(out))
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			fmt.Printf("exported %d bytes to %s\n", len(data), out)
			return nil
		},
	}

	exportCmd.Flags().StringP("out", "o", "", "Output file path (required)")
	exportCmd.Flags().StringP("workspace", "w", "", "Workspace ID (omit for the system scope)")
	exportCmd.Flags().StringP("category", "c", "", "Only keys of this category")
	exportCmd.Flags().Bool("configured", false, "Only explicitly configured values, no defaults")
	exportCmd.Flags().Bool("include-sensitive", false, "Export sensitive values in the clear")
	err := exportCmd.MarkFlagRequired("out")
	if err != nil {
		return nil
	}

	return exportCmd
}

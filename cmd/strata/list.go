package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/phrazzld/strata/internal/service/export"
)

// ListCmd creates and returns the list command
func ListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List resolved configuration for a scope",
		Long: "List the materialized configuration of the system scope or one workspace.\n" +
			"Values come from the resolved table; run 'strata prime' first if the scope is stale.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, _ := cmd.Flags().GetString("workspace")
			category, _ := cmd.Flags().GetString("category")
			configured, _ := cmd.Flags().GetBool("configured")

			workspaceID, err := parseWorkspaceFlag(workspace)
			if err != nil {
				return err
			}

			e, err := setupEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			entries, err := e.exporter.Collect(context.Background(), export.Options{
				WorkspaceID:    workspaceID,
				Category:       category,
				ConfiguredOnly: configured,
			})
			if err != nil {
				return fmt.Errorf("failed to collect configuration: %w", err)
			}

			printEntries(entries)
			return nil
		},
	}

	listCmd.Flags().StringP("workspace", "w", "", "Workspace ID (omit for the system scope)")
	listCmd.Flags().StringP("category", "c", "", "Only keys of this category")
	listCmd.Flags().Bool("configured", false, "Only explicitly configured values, no defaults")

	return listCmd
}

func printEntries(entries []export.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tCHANNEL\tVALUE\tTYPE\tFLAGS")

	for _, entry := range entries {
		channel := entry.Channel
		if channel == "" {
			channel = "-"
		}

		flags := ""
		if entry.Locked {
			flags += "locked "
		}
		if entry.Virtual {
			flags += "default "
		}
		if entry.Masked {
			flags += "masked "
		}
		if flags == "" {
			flags = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			entry.Key, channel, entry.Value, entry.Type, flags)
	}

	_ = w.Flush()
}

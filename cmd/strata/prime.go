package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// PrimeCmd creates and returns the prime command
func PrimeCmd() *cobra.Command {
	primeCmd := &cobra.Command{
		Use:   "prime",
		Short: "Recompute the materialized configuration",
		Long: "Recompute resolved configuration rows for the system scope, one workspace,\n" +
			"or every scope. The pass is idempotent and safe to rerun after an interruption.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, _ := cmd.Flags().GetString("workspace")
			all, _ := cmd.Flags().GetBool("all")

			if all && workspace != "" {
				return fmt.Errorf("--all and --workspace are mutually exclusive")
			}

			workspaceID, err := parseWorkspaceFlag(workspace)
			if err != nil {
				return err
			}

			e, err := setupEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := context.Background()
			switch {
			case all:
				if err := e.primer.PrimeAll(ctx); err != nil {
					return fmt.Errorf("full prime failed: %w", err)
				}
				fmt.Println("primed all scopes")
			case workspaceID != nil:
				if err := e.primer.PrimeWorkspace(ctx, *workspaceID); err != nil {
					return fmt.Errorf("workspace prime failed: %w", err)
				}
				fmt.Printf("primed workspace %s\n", workspaceID)
			default:
				if err := e.primer.PrimeSystem(ctx); err != nil {
					return fmt.Errorf("system prime failed: %w", err)
				}
				fmt.Println("primed system scope")
			}

			return nil
		},
	}

	primeCmd.Flags().StringP("workspace", "w", "", "Prime a single workspace")
	primeCmd.Flags().Bool("all", false, "Prime the system scope and every workspace")

	return primeCmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newResetDBCmd(f *globalFlags) *cobra.Command {
	var purgeWorkspace bool

	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Delete the state database (and optionally the workspace) to start over",
		RunE: func(cmd *cobra.Command, args []string) error {
			var removed []string
			for _, p := range []string{f.dbPath, f.dbPath + "-wal", f.dbPath + "-shm"} {
				if _, err := os.Stat(p); err == nil {
					if err := os.Remove(p); err != nil {
						return fmt.Errorf("remove %s: %w", p, err)
					}
					removed = append(removed, p)
				}
			}
			if purgeWorkspace {
				for _, dir := range []string{"inputs", "artifacts", "reviews", "required_docs"} {
					path := f.workspace + "/" + dir
					if err := os.RemoveAll(path); err != nil {
						return fmt.Errorf("remove %s: %w", path, err)
					}
					removed = append(removed, path)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed: %v\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&purgeWorkspace, "purge-workspace", false, "also delete inputs/artifacts/reviews/required_docs under the workspace root")
	return cmd
}

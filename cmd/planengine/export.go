package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(f *globalFlags) *cobra.Command {
	var planID string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Bundle a plan's approved deliverables into one manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := currentPlanID(cmd.Context(), a.store, planID)
			if err != nil {
				return fmt.Errorf("resolve plan id: %w", err)
			}

			manifest, err := a.exporter.Run(cmd.Context(), id, !activeOnly)
			if err != nil {
				return fmt.Errorf("export plan %s: %w", id, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(manifest)
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to export (defaults to the most recently created plan)")
	cmd.Flags().BoolVar(&activeOnly, "include-unapproved", false, "fall back to each task's active (not yet approved) artifact")
	return cmd
}

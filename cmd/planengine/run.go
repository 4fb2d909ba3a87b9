package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(f *globalFlags) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a plan's tick loop until it finishes, stalls on a human, or a fuse trips",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			go a.cfgWatcher.Start(cmd.Context())

			id, err := currentPlanID(cmd.Context(), a.store, planID)
			if err != nil {
				return fmt.Errorf("resolve plan id: %w", err)
			}

			outcome, err := a.engine.Run(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan_id: %s\noutcome: %s\n", id, outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to run (defaults to the most recently created plan)")
	return cmd
}

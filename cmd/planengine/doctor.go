package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDoctorCmd(f *globalFlags) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Self-check the database schema and one plan's graph invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			var planArg *string
			if planID != "" {
				planArg = &planID
			}
			// Run's non-nil error *is* "some check failed", not an
			// infrastructure failure — the report is always populated, so
			// print it before deciding the exit status.
			report, runErr := a.doctor.Run(cmd.Context(), planArg)

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, c := range report.Checks {
				if err := enc.Encode(c); err != nil {
					return err
				}
			}
			if report.Passed {
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			}
			return fmt.Errorf("doctor found failing checks: %w", runErr)
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "also check this plan's graph invariants")
	return cmd
}

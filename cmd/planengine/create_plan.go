package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCreatePlanCmd(f *globalFlags) *cobra.Command {
	var topTask, topTaskFile string

	cmd := &cobra.Command{
		Use:   "create-plan",
		Short: "Generate a task plan from a top-level problem statement and get it reviewer-approved",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (topTask == "") == (topTaskFile == "") {
				return fmt.Errorf("provide exactly one of --top-task or --top-task-file")
			}
			task := topTask
			if topTaskFile != "" {
				b, err := os.ReadFile(topTaskFile)
				if err != nil {
					return fmt.Errorf("read --top-task-file: %w", err)
				}
				task = string(b)
			}

			a, err := newApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.creator.Run(cmd.Context(), task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan_id: %s\ntitle: %s\nroot_task_id: %s\n", plan.PlanID, plan.Title, plan.RootTaskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&topTask, "top-task", "", "the problem statement text")
	cmd.Flags().StringVar(&topTaskFile, "top-task-file", "", "read the problem statement from this file")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newErrorsCmd(f *globalFlags) *cobra.Command {
	var planID, taskID string
	var limit int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show recent TASK_ERROR events, optionally scoped to one task",
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

			var events []taskEventView
			if taskID != "" {
				evts, err := a.store.ListEventsForTask(cmd.Context(), taskID)
				if err != nil {
					return fmt.Errorf("list events for task %s: %w", taskID, err)
				}
				events = filterErrorEvents(evts, limit)
			} else {
				evts, err := a.store.ListEventsForPlan(cmd.Context(), id, nil)
				if err != nil {
					return fmt.Errorf("list events for plan %s: %w", id, err)
				}
				events = filterErrorEvents(evts, limit)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to scope (defaults to the most recently created plan)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "restrict to one task's error history")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to print, most recent first")
	return cmd
}

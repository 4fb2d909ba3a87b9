package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dagrunner/planengine/internal/model"
)

func newResetFailedCmd(f *globalFlags) *cobra.Command {
	var planID string
	var includeBlocked, resetAttempts bool

	cmd := &cobra.Command{
		Use:   "reset-failed",
		Short: "Reset FAILED (optionally BLOCKED) tasks back to READY after fixing prompts or config",
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

			nodes, err := a.store.ListTaskNodes(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("list task nodes: %w", err)
			}

			now := time.Now().UTC().Format(time.RFC3339Nano)
			reset := 0
			for _, n := range nodes {
				if !n.ActiveBranch {
					continue
				}
				if n.Status != model.StatusFailed && !(includeBlocked && n.Status == model.StatusBlocked) {
					continue
				}
				if err := a.store.SetTaskStatus(cmd.Context(), nil, n.TaskID, model.StatusReady, nil, now); err != nil {
					return fmt.Errorf("reset task %s: %w", n.TaskID, err)
				}
				if resetAttempts {
					if err := a.store.ResetAttemptCount(cmd.Context(), nil, n.TaskID, now); err != nil {
						return fmt.Errorf("reset attempts for %s: %w", n.TaskID, err)
					}
				}
				if err := a.store.AppendEvent(cmd.Context(), nil, model.TaskEvent{
					EventID: uuid.NewString(), PlanID: id, TaskID: &n.TaskID, EventType: "STATUS_CHANGED",
					Payload:   map[string]any{"status": string(model.StatusReady), "blocked_reason": nil, "source": "reset-failed"},
					CreatedAt: time.Now().UTC(),
				}); err != nil {
					return fmt.Errorf("append event for %s: %w", n.TaskID, err)
				}
				reset++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset_failed: %d\n", reset)
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to reset (defaults to the most recently created plan)")
	cmd.Flags().BoolVar(&includeBlocked, "include-blocked", false, "also reset BLOCKED tasks to READY")
	cmd.Flags().BoolVar(&resetAttempts, "reset-attempts", false, "also reset attempt_count to 0")
	return cmd
}

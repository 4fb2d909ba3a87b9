package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dagrunner/planengine/internal/model"
)

type llmCallView struct {
	CreatedAt      string `json:"created_at"`
	PlanID         string `json:"plan_id,omitempty"`
	TaskID         string `json:"task_id,omitempty"`
	Agent          string `json:"agent"`
	Scope          string `json:"scope"`
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	ValidatorError string `json:"validator_error,omitempty"`
}

func newLLMCallsCmd(f *globalFlags) *cobra.Command {
	var planID, taskID string
	var limit int

	cmd := &cobra.Command{
		Use:   "llm-calls",
		Short: "Show recent LM calls from the database, including validator errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			var calls []model.LlmCall
			if taskID != "" {
				calls, err = a.store.ListLlmCallsForTask(cmd.Context(), taskID)
				if err != nil {
					return fmt.Errorf("list llm calls for task %s: %w", taskID, err)
				}
				if len(calls) > limit {
					calls = calls[len(calls)-limit:]
				}
			} else {
				id, err := currentPlanID(cmd.Context(), a.store, planID)
				if err != nil {
					return fmt.Errorf("resolve plan id: %w", err)
				}
				calls, err = a.store.ListLlmCallsForPlan(cmd.Context(), id, limit)
				if err != nil {
					return fmt.Errorf("list llm calls for plan %s: %w", id, err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, c := range calls {
				v := llmCallView{
					CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
					Agent:     string(c.Agent),
					Scope:     string(c.Scope),
				}
				if c.PlanID != nil {
					v.PlanID = *c.PlanID
				}
				if c.TaskID != nil {
					v.TaskID = *c.TaskID
				}
				if c.ErrorCode != nil {
					v.ErrorCode = string(*c.ErrorCode)
				}
				if c.ErrorMessage != nil {
					v.ErrorMessage = truncateString(*c.ErrorMessage, 240)
				}
				if c.ValidatorError != nil {
					v.ValidatorError = truncateString(*c.ValidatorError, 240)
				}
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to scope (defaults to the most recently created plan; ignored with --task-id)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "restrict to one task's LM call history")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum calls to print, most recent first")
	return cmd
}

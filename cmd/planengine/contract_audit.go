package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/model"
)

// auditBucket aggregates one (scope, agent) pair's call counters, grounded
// on core/contract_audit.py's audit_llm_calls.
type auditBucket struct {
	Scope              string `json:"scope"`
	Agent              string `json:"agent"`
	Total              int    `json:"total"`
	WithErrorCode      int    `json:"with_error_code"`
	WithValidatorError int    `json:"with_validator_error"`
	NormalizationDrift int    `json:"normalization_drift"`
}

func newContractAuditCmd(f *globalFlags) *cobra.Command {
	var planID string
	var limit int

	cmd := &cobra.Command{
		Use:   "contract-audit",
		Short: "Audit recent LM calls for drift between the stored normalization and what the current normalizer produces",
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
			calls, err := a.store.ListLlmCallsForPlan(cmd.Context(), id, limit)
			if err != nil {
				return fmt.Errorf("list llm calls for plan %s: %w", id, err)
			}

			buckets := map[string]*auditBucket{}
			for _, c := range calls {
				key := string(c.Scope) + "|" + string(c.Agent)
				b, ok := buckets[key]
				if !ok {
					b = &auditBucket{Scope: string(c.Scope), Agent: string(c.Agent)}
					buckets[key] = b
				}
				b.Total++
				if c.ErrorCode != nil {
					b.WithErrorCode++
				}
				if c.ValidatorError != nil {
					b.WithValidatorError++
				}
				if drifted(c) {
					b.NormalizationDrift++
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, b := range buckets {
				if err := enc.Encode(b); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to audit (defaults to the most recently created plan)")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum calls to consider, most recent first")
	return cmd
}

// drifted re-runs today's normalizer over a call's originally parsed JSON
// and reports whether it now produces something different from what was
// persisted at the time — the signal that a contract change silently
// altered behavior for calls already on disk.
func drifted(c model.LlmCall) bool {
	if c.ParsedJSON == nil || c.NormalizedJSON == nil || c.TaskID == nil {
		return false
	}
	var current map[string]any
	switch c.Scope {
	case model.ScopeTaskAction:
		current = contracts.NormalizeXiaoboAction(c.ParsedJSON, *c.TaskID)
	case model.ScopeTaskCheck:
		current = contracts.NormalizeXiaojingReview(c.ParsedJSON, *c.TaskID, "NODE")
	default:
		// PLAN_GEN/PLAN_REVIEW normalization depends on the original top-task
		// text and generation timestamp, neither of which survives on the
		// LlmCall row, so drift can't be recomputed for those scopes here.
		return false
	}
	// NormalizedJSON comes back from the store with every number decoded as
	// float64, so both sides are compared in their JSON encoding.
	want, err := json.Marshal(c.NormalizedJSON)
	if err != nil {
		return false
	}
	got, err := json.Marshal(current)
	if err != nil {
		return false
	}
	return string(got) != string(want)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dagrunner/planengine/internal/model"
)

func newRepairDBCmd(f *globalFlags) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "repair-db",
		Short: "Repair common, safely-fixable database integrity issues",
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

			repairedRoot, err := repairMissingRootTask(cmd.Context(), a, id)
			if err != nil {
				return fmt.Errorf("repair root task: %w", err)
			}
			repairedEdges, err := repairMissingDecomposeEdges(cmd.Context(), a, id)
			if err != nil {
				return fmt.Errorf("repair decompose edges: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(map[string]any{
				"repaired_root_tasks":      repairedRoot,
				"repaired_decompose_edges": repairedEdges,
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to repair (defaults to the most recently created plan)")
	return cmd
}

// repairMissingRootTask fixes a plan whose root_task_id no longer points at
// an existing task node — re-pointing it at the first GOAL node the plan
// still has, mirroring core/repair.py's repair_missing_root_tasks.
func repairMissingRootTask(ctx context.Context, a *app, planID string) (int, error) {
	plan, err := a.store.GetPlan(ctx, planID)
	if err != nil {
		return 0, err
	}
	if _, err := a.store.GetTaskNode(ctx, plan.RootTaskID); err == nil {
		return 0, nil
	}

	nodes, err := a.store.ListTaskNodes(ctx, planID)
	if err != nil {
		return 0, err
	}
	for _, n := range nodes {
		if n.NodeType == model.NodeGoal {
			plan.RootTaskID = n.TaskID
			if err := a.store.UpsertPlan(ctx, nil, *plan); err != nil {
				return 0, err
			}
			return 1, nil
		}
	}
	return 0, nil
}

// repairMissingDecomposeEdges reconnects any non-root node with zero
// incoming DECOMPOSE edges back to the plan root, so doctor's reachability
// check (§4.10) stops flagging it as orphaned. Grounded on
// core/repair.py's repair_missing_decompose_edges.
func repairMissingDecomposeEdges(ctx context.Context, a *app, planID string) (int, error) {
	plan, err := a.store.GetPlan(ctx, planID)
	if err != nil {
		return 0, err
	}
	nodes, err := a.store.ListTaskNodes(ctx, planID)
	if err != nil {
		return 0, err
	}
	edges, err := a.store.ListEdgesByType(ctx, planID, model.EdgeDecompose)
	if err != nil {
		return 0, err
	}
	hasIncoming := make(map[string]bool, len(edges))
	for _, e := range edges {
		hasIncoming[e.ToTaskID] = true
	}

	repaired := 0
	andOr := model.AndOrAnd
	for _, n := range nodes {
		if n.TaskID == plan.RootTaskID || hasIncoming[n.TaskID] {
			continue
		}
		if err := a.store.InsertTaskEdge(ctx, nil, model.TaskEdge{
			EdgeID: uuid.NewString(), PlanID: planID, FromTaskID: plan.RootTaskID,
			ToTaskID: n.TaskID, EdgeType: model.EdgeDecompose, AndOr: &andOr,
		}); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

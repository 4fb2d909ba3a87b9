package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dagrunner/planengine/internal/model"
)

// statusReport is the YAML-rendered shape for `status --format yaml`; the
// table renderer below walks model.TaskNode directly instead.
type statusReport struct {
	PlanID     string           `yaml:"plan_id"`
	Title      string           `yaml:"title"`
	RootTaskID string           `yaml:"root_task_id"`
	Tasks      []statusTaskLine `yaml:"tasks"`
}

type statusTaskLine struct {
	TaskID        string `yaml:"task_id"`
	NodeType      string `yaml:"node_type"`
	OwnerAgent    string `yaml:"owner_agent"`
	Status        string `yaml:"status"`
	BlockedReason string `yaml:"blocked_reason,omitempty"`
	AttemptCount  int    `yaml:"attempt_count"`
	ActiveBranch  bool   `yaml:"active_branch"`
	Title         string `yaml:"title"`
}

func newStatusCmd(f *globalFlags) *cobra.Command {
	var planID, format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a plan's task graph status",
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
			plan, err := a.store.GetPlan(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load plan %s: %w", id, err)
			}
			nodes, err := a.store.ListTaskNodes(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("list task nodes: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == "yaml" {
				return renderStatusYAML(out, plan, nodes)
			}
			fmt.Fprintf(out, "plan_id: %s\ntitle: %s\nroot_task_id: %s\n\n", plan.PlanID, plan.Title, plan.RootTaskID)
			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK_ID\tTYPE\tOWNER\tSTATUS\tBLOCKED_REASON\tATTEMPTS\tACTIVE\tTITLE")
			for _, n := range nodes {
				reason := "-"
				if n.BlockedReason != nil {
					reason = string(*n.BlockedReason)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%v\t%s\n",
					n.TaskID, n.NodeType, n.OwnerAgent, n.Status, reason, n.AttemptCount, n.ActiveBranch, n.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan to show (defaults to the most recently created plan)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or yaml")
	return cmd
}

func renderStatusYAML(out interface{ Write([]byte) (int, error) }, plan *model.Plan, nodes []model.TaskNode) error {
	report := statusReport{PlanID: plan.PlanID, Title: plan.Title, RootTaskID: plan.RootTaskID}
	for _, n := range nodes {
		line := statusTaskLine{
			TaskID: n.TaskID, NodeType: string(n.NodeType), OwnerAgent: string(n.OwnerAgent),
			Status: string(n.Status), AttemptCount: n.AttemptCount, ActiveBranch: n.ActiveBranch, Title: n.Title,
		}
		if n.BlockedReason != nil {
			line.BlockedReason = string(*n.BlockedReason)
		}
		report.Tasks = append(report.Tasks, line)
	}
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(report)
}

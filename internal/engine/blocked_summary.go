package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/workspace"
)

// writeBlockedSummary renders required_docs/<plan>/blocked_summary.md: every
// active-branch task BLOCKED on a human (WAITING_INPUT or WAITING_EXTERNAL),
// why, and what it's missing, so an operator
// reading the workspace doesn't have to query the database to see what to
// unblock next.
func (e *Engine) writeBlockedSummary(ctx context.Context, planID string) error {
	nodes, err := e.store.ListTaskNodes(ctx, planID)
	if err != nil {
		return fmt.Errorf("list task nodes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Plan %s is blocked waiting on you\n\n", planID)

	found := 0
	for _, n := range nodes {
		if !n.ActiveBranch || n.Status != model.StatusBlocked {
			continue
		}
		if n.BlockedReason == nil || !userWaitReasons[*n.BlockedReason] {
			continue
		}
		found++
		fmt.Fprintf(&b, "## %s (`%s`)\n\n", n.Title, n.TaskID)
		fmt.Fprintf(&b, "- owner: %s\n- reason: %s\n- attempt_count: %d\n",
			n.OwnerAgent, *n.BlockedReason, n.AttemptCount)

		if *n.BlockedReason == model.WaitingInput {
			fmt.Fprintf(&b, "- required docs: %s\n", e.workspace.RequiredDocsPath(n.TaskID))
			if missing := e.missingRequirementNames(ctx, n.TaskID); len(missing) > 0 {
				fmt.Fprintf(&b, "- missing requirements: %s\n", strings.Join(missing, ", "))
			}
		}

		if last := e.lastErrorEvent(ctx, n.TaskID); last != "" {
			fmt.Fprintf(&b, "- last error: %s\n", last)
		}
		b.WriteString("\n")
	}
	if found == 0 {
		b.WriteString("No active-branch task is blocked on human input; this summary should not have been written.\n")
	}

	return workspace.WriteFile(e.workspace.BlockedSummaryPath(planID), []byte(b.String()), 0o644)
}

func (e *Engine) missingRequirementNames(ctx context.Context, taskID string) []string {
	reqs, err := e.store.ListRequirementsForTask(ctx, taskID)
	if err != nil {
		return nil
	}
	var missing []string
	for _, r := range reqs {
		if !r.Required {
			continue
		}
		n, err := e.store.EvidenceCount(ctx, r.RequirementID)
		if err != nil || n < r.MinCount {
			missing = append(missing, r.Name)
		}
	}
	return missing
}

func (e *Engine) lastErrorEvent(ctx context.Context, taskID string) string {
	events, err := e.store.ListEventsForTask(ctx, taskID)
	if err != nil {
		return ""
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType != "TASK_ERROR" {
			continue
		}
		code, _ := events[i].Payload["error_code"].(string)
		return fmt.Sprintf("%s at %s", code, events[i].CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return ""
}

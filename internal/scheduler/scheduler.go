// Package scheduler orders ready work for the engine tick loop. The total
// order is enforced in SQL (internal/store/pick.go); this package just
// names the two queues the engine reads (§4.6). Grounded on
// original_source/core/scheduler.py.
package scheduler

import (
	"context"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
)

// Phase names which agent a picked task belongs to, so the engine can
// dispatch to exactly one of Executor/Reviewer for it (§2: "Executor xor
// Reviewer").
type Phase string

const (
	PhaseNone     Phase = ""
	PhaseExecutor Phase = "EXECUTOR"
	PhaseReviewer Phase = "REVIEWER"
)

type Scheduler struct {
	store *store.Store
}

func New(s *store.Store) *Scheduler { return &Scheduler{store: s} }

// Next picks at most one runnable task for the tick, checking the executor's
// ACTION queue (TO_BE_MODIFY/READY), then the reviewer's ACTION queue
// (READY_TO_CHECK), then the reviewer's dedicated CHECK queue (READY), in
// that order, and stops at the first non-empty one. This enforces §4.6's
// "pick at most one task per tick" and §2's "Executor xor Reviewer": a tick
// never runs both phases, and never runs more than one task.
func (s *Scheduler) Next(ctx context.Context, planID string) (*model.TaskNode, Phase, error) {
	execTasks, err := s.store.PickExecutorTasks(ctx, planID, model.AgentExecutor, 1)
	if err != nil {
		return nil, PhaseNone, fmt.Errorf("pick executor task: %w", err)
	}
	if len(execTasks) > 0 {
		return &execTasks[0], PhaseExecutor, nil
	}

	reviewTasks, err := s.store.PickReviewerTasks(ctx, planID, 1)
	if err != nil {
		return nil, PhaseNone, fmt.Errorf("pick reviewer task: %w", err)
	}
	if len(reviewTasks) > 0 {
		return &reviewTasks[0], PhaseReviewer, nil
	}

	checkNodes, err := s.store.PickReviewerCheckNodes(ctx, planID, model.AgentReviewer, 1)
	if err != nil {
		return nil, PhaseNone, fmt.Errorf("pick reviewer check node: %w", err)
	}
	if len(checkNodes) > 0 {
		return &checkNodes[0], PhaseReviewer, nil
	}

	return nil, PhaseNone, nil
}

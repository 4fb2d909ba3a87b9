package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/executor"
	"github.com/dagrunner/planengine/internal/matcher"
	"github.com/dagrunner/planengine/internal/metrics"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/readiness"
	"github.com/dagrunner/planengine/internal/reviewer"
	"github.com/dagrunner/planengine/internal/scheduler"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/workspace"
)

// Outcome is why Run stopped.
type Outcome string

const (
	OutcomeDone                Outcome = "DONE"
	OutcomeBlockedWaitingUser  Outcome = "BLOCKED_WAITING_USER"
	OutcomeIterationsExhausted Outcome = "ITERATIONS_EXHAUSTED"
)

// activeRunnableStatuses are the statuses that mean "still runnable" for
// the blocked-waiting-user check (§5): a plan is stuck only when none of
// its active-branch tasks are in one of these.
var activeRunnableStatuses = map[model.TaskStatus]bool{
	model.StatusReady:        true,
	model.StatusToBeModify:   true,
	model.StatusReadyToCheck: true,
	model.StatusInProgress:   true,
}

// userWaitReasons are the BLOCKED reasons that count as "waiting on a
// human" rather than a transient internal retry.
var userWaitReasons = map[model.BlockedReason]bool{
	model.WaitingInput:    true,
	model.WaitingExternal: true,
}

// Engine wires the per-tick pipeline together: one call to Run drives a
// single plan from wherever it currently sits to DONE, blocked, or a fuse
// trip.
type Engine struct {
	store     *store.Store
	cfg       *config.Config
	workspace *workspace.Workspace
	matcher   *matcher.Matcher
	readiness *readiness.Recomputer
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	reviewer  *reviewer.Reviewer
	logger    *zap.Logger
	metrics   *metrics.Collector
	watcher   *matcher.Watcher
	now       func() time.Time
}

// New wires one tick pipeline. met may be nil, in which case Run records no
// metrics.
func New(
	s *store.Store,
	cfg *config.Config,
	ws *workspace.Workspace,
	m *matcher.Matcher,
	r *readiness.Recomputer,
	sch *scheduler.Scheduler,
	ex *executor.Executor,
	rv *reviewer.Reviewer,
	logger *zap.Logger,
	met *metrics.Collector,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store: s, cfg: cfg, workspace: ws, matcher: m, readiness: r,
		scheduler: sch, executor: ex, reviewer: rv, logger: logger, metrics: met, now: time.Now,
	}
}

// Run ticks planID until it finishes, stalls waiting on a human, a fuse
// trips, or ctx is cancelled. A fuse trip or infra failure is returned as
// an error (a *model.EngineError for the former); OutcomeIterationsExhausted
// is not itself an error — MaxRunIterations is a liveness backstop, not a
// plan-correctness signal.
func (e *Engine) Run(ctx context.Context, planID string) (Outcome, error) {
	start := e.now()
	g := e.cfg.Guardrails

	for i := 0; i < g.MaxRunIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if elapsed := e.now().Sub(start); elapsed > time.Duration(g.MaxPlanRuntimeSeconds)*time.Second {
			return "", e.fuseErr(ctx, planID, model.CodePlanTimeout,
				fmt.Sprintf("plan exceeded %ds runtime budget", g.MaxPlanRuntimeSeconds))
		}

		tickStart := e.now()
		if err := e.tick(ctx, planID); err != nil {
			return "", fmt.Errorf("tick %d: %w", i, err)
		}
		if e.metrics != nil {
			e.metrics.RecordTick(e.now().Sub(tickStart))
		}

		calls, err := e.store.CountLlmCallsForPlan(ctx, planID)
		if err != nil {
			return "", fmt.Errorf("count llm calls: %w", err)
		}
		if calls > g.MaxLLMCalls {
			return "", e.fuseErr(ctx, planID, model.CodeMaxLLMCallsExceeded,
				fmt.Sprintf("plan made %d llm calls, over the %d budget", calls, g.MaxLLMCalls))
		}

		done, err := e.isPlanDone(ctx, planID)
		if err != nil {
			return "", fmt.Errorf("check plan done: %w", err)
		}
		if done {
			return OutcomeDone, nil
		}

		blocked, err := e.isPlanBlockedWaitingUser(ctx, planID)
		if err != nil {
			return "", fmt.Errorf("check plan blocked: %w", err)
		}
		if blocked {
			if err := e.writeBlockedSummary(ctx, planID); err != nil {
				e.logger.Warn("failed to write blocked summary", zap.String("plan_id", planID), zap.Error(err))
			}
			return OutcomeBlockedWaitingUser, nil
		}

		e.sleep(ctx, time.Duration(g.PollIntervalSeconds)*time.Second)
	}
	return OutcomeIterationsExhausted, nil
}

// SetWatcher attaches an optional filesystem watcher over the workspace's
// inputs directory. When set, sleep returns as soon as the watcher reports
// activity instead of waiting out the full poll interval, so a user dropping
// evidence into workspace/inputs/ doesn't sit through PollIntervalSeconds of
// dead time before the engine notices.
func (e *Engine) SetWatcher(w *matcher.Watcher) { e.watcher = w }

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	if e.watcher == nil {
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		return
	}
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-e.watcher.Events:
	}
}

// tick runs one full pass: bind new evidence, drop evidence for files that
// disappeared, recompute readiness, then pick at most one runnable task and
// dispatch it to exactly one of the executor or reviewer phases (§4.6,
// §2: "Executor xor Reviewer").
func (e *Engine) tick(ctx context.Context, planID string) error {
	inputsDirs := []string{e.workspace.InputsDir()}
	if _, err := e.matcher.ScanInputsAndBindEvidence(ctx, planID, inputsDirs, matcher.DefaultBudget); err != nil {
		return fmt.Errorf("scan inputs: %w", err)
	}
	if _, err := e.matcher.DetectRemovedInputFiles(ctx, planID, inputsDirs); err != nil {
		return fmt.Errorf("detect removed inputs: %w", err)
	}
	if _, err := e.readiness.Recompute(ctx, planID); err != nil {
		return fmt.Errorf("recompute readiness: %w", err)
	}

	task, phase, err := e.scheduler.Next(ctx, planID)
	if err != nil {
		return fmt.Errorf("pick next task: %w", err)
	}
	if task == nil {
		return nil
	}

	switch phase {
	case scheduler.PhaseExecutor:
		if err := e.executor.Run(ctx, *task); err != nil {
			e.logger.Error("executor run failed", zap.String("task_id", task.TaskID), zap.Error(err))
		}
	case scheduler.PhaseReviewer:
		if task.NodeType == model.NodeCheck {
			if err := e.reviewer.RunCheckNode(ctx, *task); err != nil {
				e.logger.Error("reviewer check node run failed", zap.String("task_id", task.TaskID), zap.Error(err))
			}
		} else {
			if err := e.reviewer.Run(ctx, *task); err != nil {
				e.logger.Error("reviewer run failed", zap.String("task_id", task.TaskID), zap.Error(err))
			}
		}
	}

	// A second readiness pass: the dispatch above may have produced a DONE
	// or BLOCKED transition that unblocks or re-blocks a downstream node
	// before the next tick's scan runs.
	if _, err := e.readiness.Recompute(ctx, planID); err != nil {
		return fmt.Errorf("recompute readiness after dispatch: %w", err)
	}
	return nil
}

func (e *Engine) isPlanDone(ctx context.Context, planID string) (bool, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("load plan: %w", err)
	}
	root, err := e.store.GetTaskNode(ctx, plan.RootTaskID)
	if err != nil {
		return false, fmt.Errorf("load root task: %w", err)
	}
	return root.Status == model.StatusDone, nil
}

// isPlanBlockedWaitingUser is true iff no active-branch task is runnable
// and at least one active-branch task is BLOCKED on something only a human
// can resolve.
func (e *Engine) isPlanBlockedWaitingUser(ctx context.Context, planID string) (bool, error) {
	nodes, err := e.store.ListTaskNodes(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("list task nodes: %w", err)
	}
	hasRunnable := false
	hasUserBlocked := false
	for _, n := range nodes {
		if !n.ActiveBranch {
			continue
		}
		if activeRunnableStatuses[n.Status] {
			hasRunnable = true
		}
		if n.Status == model.StatusBlocked && n.BlockedReason != nil && userWaitReasons[*n.BlockedReason] {
			hasUserBlocked = true
		}
	}
	return !hasRunnable && hasUserBlocked, nil
}

// fuseErr records the tripped fuse as a PLAN_FUSE_TRIPPED event on the plan (no
// single task_id applies) and returns the *model.EngineError Run reports.
func (e *Engine) fuseErr(ctx context.Context, planID string, code model.ErrorCode, hint string) error {
	if e.metrics != nil {
		e.metrics.RecordFuseTrip(string(code))
	}
	eerr := model.NewEngineError(code, hint, nil)
	if err := e.store.AppendEvent(ctx, nil, model.TaskEvent{
		EventID: uuid.NewString(), PlanID: planID, EventType: "PLAN_FUSE_TRIPPED",
		Payload:   map[string]any{"error_code": string(code), "hint": hint},
		CreatedAt: e.now().UTC(),
	}); err != nil {
		e.logger.Warn("failed to record fuse trip event", zap.String("plan_id", planID), zap.Error(err))
	}
	return eerr
}

package executor

import "github.com/dagrunner/planengine/internal/model"

// errorOutcome is the §7 taxonomy row applied to the scheduled task: the
// status/blocked_reason it lands in and whether attempt_count advances.
type errorOutcome struct {
	Status          model.TaskStatus
	BlockedReason   *model.BlockedReason
	IncrementAttempt bool
}

func waitingReason(r model.BlockedReason) *model.BlockedReason { return &r }

// errorOutcomes maps a self-reported or transport-level error code to its
// task-status consequence. LLM_* codes land here via llmclient's Result;
// the rest arrive as the ERROR result_type's error.code field.
var errorOutcomes = map[model.ErrorCode]errorOutcome{
	model.CodeLLMUnparseable: {Status: model.StatusFailed, IncrementAttempt: true},
	model.CodeLLMTimeout:     {Status: model.StatusFailed, IncrementAttempt: true},
	model.CodeLLMRefusal:     {Status: model.StatusFailed, IncrementAttempt: true},
	model.CodeSkillFailed:    {Status: model.StatusBlocked, BlockedReason: waitingReason(model.WaitingSkill)},
	model.CodeSkillTimeout:   {Status: model.StatusBlocked, BlockedReason: waitingReason(model.WaitingSkill)},
	model.CodeSkillBadInput:  {Status: model.StatusBlocked, BlockedReason: waitingReason(model.WaitingInput)},
	model.CodeInputConflict:  {Status: model.StatusBlocked, BlockedReason: waitingReason(model.WaitingExternal)},
	model.CodeInputMissing:   {Status: model.StatusBlocked, BlockedReason: waitingReason(model.WaitingInput)},
}

// defaultErrorOutcome is applied when the executor reports an error code
// this engine does not recognize — it must not silently no-op.
var defaultErrorOutcome = errorOutcome{Status: model.StatusBlocked, BlockedReason: waitingReason(model.WaitingExternal)}

func outcomeFor(code model.ErrorCode) errorOutcome {
	if o, ok := errorOutcomes[code]; ok {
		return o
	}
	return defaultErrorOutcome
}

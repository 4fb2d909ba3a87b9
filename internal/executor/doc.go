// Package executor drives the Executor Phase (§4.7): it assembles the
// bounded [Shared]+[Agent-specific]+[RuntimeContext] prompt for a scheduled
// task, makes one LM call through internal/llmclient, and applies the
// result_type state machine (ARTIFACT / NEEDS_INPUT / NOOP / ERROR) plus the
// §7 error-code mapping to the task's status.
//
// Grounded on original_source/core/prompts.py for the RuntimeContext shape
// and original_source/core/plan_workflow.py for the per-result transition
// logic; prompt assembly style (fixed system text + a single runtime-context
// JSON blob as user content) follows internal/llmclient's typed
// request/result pair driving one external call.
package executor

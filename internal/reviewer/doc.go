// Package reviewer drives the Reviewer Phase (§4.8): it version-locks the
// artifact under review, assembles the bounded
// [Shared]+[Agent-specific]+[RuntimeContext] prompt for xiaojing, makes the
// LM call through internal/llmclient (up to maxUnparseableRetries calls
// while a call returns an error code), and applies the score/action_required
// gating that moves the reviewed task to DONE, TO_BE_MODIFY, or
// BLOCKED(WAITING_EXTERNAL).
//
// Grounded on original_source/core/contracts_v2.py and plan_workflow.py for
// the review_target="NODE" per-task review shape and the DONE/MODIFY/
// REQUEST_EXTERNAL_INPUT transition logic; prompt assembly and LM-call
// plumbing follow internal/executor's structure (fixed system text plus a
// single runtime-context JSON user message, one call through
// internal/llmclient).
package reviewer

// Package createplan drives the CreatePlan sub-workflow (§4.9): a nested
// generate-review-retry loop that turns a single top-task string into a
// committed plan graph, or fails outright with PLAN_NOT_APPROVED without
// leaving any partially-committed plan behind.
//
// Grounded on original_source/core/plan_workflow.py (the PLAN_GEN/
// PLAN_REVIEW/commit staging) and original_source/core/contracts_v2.py
// (review_target="PLAN" for the whole-plan review pass, as opposed to
// internal/reviewer's "NODE" per-task reviews); prompt assembly and the
// one-call-per-attempt plumbing follow internal/executor and
// internal/reviewer's shared style.
package createplan

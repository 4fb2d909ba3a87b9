// Package engine drives the tick loop that turns a committed plan into a
// finished one: scan inputs, recompute readiness, pick at most one runnable
// task and dispatch it to exactly one of the executor or reviewer agents,
// and repeat until the plan is DONE, stuck waiting on a human, or one of
// the two plan-wide fuses trips.
//
// Grounded on original_source/run.py's main(): that loop runs the matcher
// scan, the readiness sweep, and up to five agent "rounds" per tick across
// both agents. This engine narrows the per-tick dispatch to a single task
// (internal/scheduler.Scheduler.Next) so a tick is always Executor xor
// Reviewer, never both. The multi-row writes each phase produces (the
// artifact/status/event sequence in internal/executor.handleArtifact, the
// plan-graph upserts in internal/createplan's commit) go through
// internal/store.Store.Tx so a crash mid-sequence can't leave a task half
// transitioned; single-row writes still rely on the single-writer SQLite
// connection the rest of this module assumes (internal/readiness's own doc
// comment).
//
// The CHECK-node review round folds the original's xiaojing_check_round and
// xiaoxie_check_round into one: this module's plan graphs only ever assign
// CHECK nodes to the reviewer agent (there is no third agent role), so a
// single internal/reviewer.RunCheckNode pass covers both.
package engine

// Package export implements the deliverables bundle (§6): for one plan, it
// copies every ACTION's latest approved artifact into a stable per-task
// bundle directory and writes the manifest/final/plan_meta JSON files a
// downstream consumer reads instead of querying the database directly.
//
// Grounded on original_source/core/export.py for the manifest shape and the
// approved-only-by-default filtering; the copy-then-hash pattern follows
// internal/workspace.SHA256File and internal/workspace.WriteFile, already
// used the same way by internal/executor for artifact persistence.
package export

// Package doctor implements the preflight and structural-invariant checks
// (§4.10): database shape and migration state, plan-graph legality, and —
// under workflow_mode=v2 — the 1:1 ACTION/CHECK and deliverable-metadata
// invariants of the strong workflow. Every check here is read-only; doctor
// never repairs anything itself (that is cmd/planengine's repair-db verb).
//
// Grounded on original_source/core/doctor.py for the check inventory and
// severity split between database-level and plan-structural failures;
// aggregation of independently-failing checks follows
// hashicorp/go-multierror, adopted here the way C360Studio-semspec uses it
// to collect unrelated validation failures without stopping at the first.
package doctor

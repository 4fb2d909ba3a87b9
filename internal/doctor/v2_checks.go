package doctor

import (
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

// checkV2Invariants enforces the strong-workflow extensions (invariant 6)
// that only apply when workflow_mode=v2: every ACTION carries deliverable
// metadata and is paired with exactly one CHECK, and ACTIONs estimated above
// the one-shot threshold are flagged (WARN) for further decomposition.
func (d *Doctor) checkV2Invariants(r *Report, nodes []model.TaskNode) {
	d.checkActionCheckPairing(r, nodes)
	d.checkDeliverableMetadata(r, nodes)
	d.checkOneShotThreshold(r, nodes)
}

// checkActionCheckPairing verifies every ACTION is referenced by exactly one
// CHECK's review_target_task_id, and every CHECK references exactly one
// ACTION.
func (d *Doctor) checkActionCheckPairing(r *Report, nodes []model.TaskNode) {
	actions := map[string]bool{}
	checksByTarget := map[string]int{}
	var checksMissingTarget []string

	for _, n := range nodes {
		switch n.NodeType {
		case model.NodeAction:
			actions[n.TaskID] = true
		case model.NodeCheck:
			if n.ReviewTargetTaskID == nil || *n.ReviewTargetTaskID == "" {
				checksMissingTarget = append(checksMissingTarget, n.TaskID)
				continue
			}
			checksByTarget[*n.ReviewTargetTaskID]++
		}
	}

	if len(checksMissingTarget) > 0 {
		r.fail("PLAN_V2_CHECK_TARGET", fmt.Sprintf("CHECK nodes with no review_target_task_id: %v", checksMissingTarget))
	} else {
		r.ok("PLAN_V2_CHECK_TARGET", "every CHECK node names a review_target_task_id")
	}

	var untargeted []string
	var overtargeted []string
	for actionID := range actions {
		switch checksByTarget[actionID] {
		case 0:
			untargeted = append(untargeted, actionID)
		case 1:
			// paired correctly
		default:
			overtargeted = append(overtargeted, actionID)
		}
	}
	if len(untargeted) > 0 || len(overtargeted) > 0 {
		r.fail("PLAN_V2_ACTION_CHECK_PAIRING", fmt.Sprintf(
			"1:1 ACTION/CHECK pairing violated; actions with no CHECK: %v, actions with >1 CHECK: %v", untargeted, overtargeted))
		return
	}
	r.ok("PLAN_V2_ACTION_CHECK_PAIRING", "every ACTION has exactly one CHECK")
}

func (d *Doctor) checkDeliverableMetadata(r *Report, nodes []model.TaskNode) {
	var missing []string
	for _, n := range nodes {
		if n.NodeType != model.NodeAction {
			continue
		}
		if n.DeliverableSpec == nil || *n.DeliverableSpec == "" {
			missing = append(missing, n.TaskID+":deliverable_spec")
		}
		if n.AcceptanceCriteria == nil || *n.AcceptanceCriteria == "" {
			missing = append(missing, n.TaskID+":acceptance_criteria")
		}
		if n.EstimatedPersonDays == nil {
			missing = append(missing, n.TaskID+":estimated_person_days")
		}
	}
	if len(missing) > 0 {
		r.fail("PLAN_V2_DELIVERABLE_METADATA", fmt.Sprintf("ACTION nodes missing required v2 fields: %v", missing))
		return
	}
	r.ok("PLAN_V2_DELIVERABLE_METADATA", "every ACTION node carries deliverable_spec, acceptance_criteria, and estimated_person_days")
}

// checkOneShotThreshold flags ACTION nodes whose estimated effort exceeds
// OneShotThresholdPersonDays but that were never decomposed further — the
// v2 rule is that oversized work must be split rather than attempted (and
// reviewed) as a single unit.
func (d *Doctor) checkOneShotThreshold(r *Report, nodes []model.TaskNode) {
	var oversized []string
	for _, n := range nodes {
		if n.NodeType != model.NodeAction || n.EstimatedPersonDays == nil {
			continue
		}
		if *n.EstimatedPersonDays > d.cfg.OneShotThresholdPersonDays {
			oversized = append(oversized, n.TaskID)
		}
	}
	if len(oversized) > 0 {
		r.warnFail("PLAN_V2_ONE_SHOT_THRESHOLD", fmt.Sprintf(
			"ACTION nodes estimated above the %.1f person-day one-shot threshold should be decomposed further: %v",
			d.cfg.OneShotThresholdPersonDays, oversized))
		return
	}
	r.warnOK("PLAN_V2_ONE_SHOT_THRESHOLD", "no ACTION node exceeds the one-shot threshold")
}

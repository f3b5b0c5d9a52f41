package pipeline

import (
	"fmt"
	"strings"

	"github.com/veriscope/veriscope/internal/domain/jobs"
)

// ClusterVerdict summarizes one cluster after member statuses are set.
// Singleton groups (items without a cluster number) are not tracked here;
// their item status stands alone.
type ClusterVerdict struct {
	Compliant    bool
	HasMandatory bool
	HasRejected  bool
	MemberIDs    []string
}

// ResolveClusters sets each item instance's status from its own rule
// outcomes, then folds clustered items into per-cluster verdicts. A
// cluster is compliant iff every member is Approved.
func ResolveClusters(items []jobs.ItemInstance) map[int]*ClusterVerdict {
	for i := range items {
		status, reasoning := itemStatus(&items[i])
		items[i].Status = status
		items[i].AssessmentReasoning = reasoning
		items[i].Confidence = itemConfidence(&items[i])
	}

	clusters := make(map[int]*ClusterVerdict)
	for i := range items {
		it := &items[i]
		if it.ClusterNumber == nil {
			continue
		}
		cv, ok := clusters[*it.ClusterNumber]
		if !ok {
			cv = &ClusterVerdict{Compliant: true}
			clusters[*it.ClusterNumber] = cv
		}
		cv.MemberIDs = append(cv.MemberIDs, it.ID)
		if it.Status != jobs.StatusApproved {
			cv.Compliant = false
		}
		if it.Status == jobs.StatusRejected {
			cv.HasRejected = true
		}
		if hasMandatoryRule(it) {
			cv.HasMandatory = true
		}
	}
	return clusters
}

// itemStatus derives the item verdict from its rule outcomes. A failing
// mandatory rule is a hard rejection; degraded evaluations and failing
// optional rules lean toward review instead.
func itemStatus(it *jobs.ItemInstance) (jobs.AssessmentStatus, string) {
	if len(it.RuleOutcomes) == 0 {
		return jobs.StatusApproved, "no description rules to evaluate"
	}

	var reasons []string
	mandatoryRejected := false
	review := false
	allSatisfied := true
	for _, o := range it.RuleOutcomes {
		if o.NeedsReview {
			review = true
			allSatisfied = false
			reasons = append(reasons, fmt.Sprintf("rule %s could not be evaluated: %s", o.RuleID, o.Reasoning))
			continue
		}
		if o.Satisfied {
			reasons = append(reasons, fmt.Sprintf("rule %s satisfied (confidence %.2f): %s", o.RuleID, o.Confidence, o.Reasoning))
			continue
		}
		allSatisfied = false
		if o.Mandatory {
			mandatoryRejected = true
			reasons = append(reasons, fmt.Sprintf("mandatory rule %s not satisfied (confidence %.2f): %s", o.RuleID, o.Confidence, o.Reasoning))
		} else {
			reasons = append(reasons, fmt.Sprintf("optional rule %s not satisfied (confidence %.2f): %s", o.RuleID, o.Confidence, o.Reasoning))
		}
	}

	reasoning := strings.Join(reasons, "; ")
	switch {
	case mandatoryRejected:
		return jobs.StatusRejected, reasoning
	case review:
		return jobs.StatusNeedsReview, reasoning
	case allSatisfied:
		return jobs.StatusApproved, reasoning
	default:
		// Only optional rules failed.
		return jobs.StatusNeedsReview, reasoning
	}
}

// itemConfidence mirrors the job-level confidence policy at item scope:
// the least confident failing or review contribution on a non-approval,
// the mean over satisfied mandatory rules (all satisfied rules when none
// are mandatory) on approval.
func itemConfidence(it *jobs.ItemInstance) *float64 {
	if len(it.RuleOutcomes) == 0 {
		return nil
	}

	if it.Status == jobs.StatusApproved {
		mandatory := hasMandatoryRule(it)
		sum, n := 0.0, 0
		for _, o := range it.RuleOutcomes {
			if !o.Satisfied {
				continue
			}
			if mandatory && !o.Mandatory {
				continue
			}
			sum += o.Confidence
			n++
		}
		if n == 0 {
			return nil
		}
		mean := sum / float64(n)
		return &mean
	}

	var min *float64
	for _, o := range it.RuleOutcomes {
		if o.Satisfied && !o.NeedsReview {
			continue
		}
		c := o.Confidence
		if min == nil || c < *min {
			min = &c
		}
	}
	return min
}

func hasMandatoryRule(it *jobs.ItemInstance) bool {
	for _, r := range it.DescriptionRulesApplied {
		if r.Mandatory {
			return true
		}
	}
	return false
}

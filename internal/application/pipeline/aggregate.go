package pipeline

import (
	"github.com/veriscope/veriscope/internal/domain/jobs"
)

// Aggregate computes the job-level verdict and representative confidence
// from resolved item instances and cluster verdicts.
//
// Verdict policy: a rejected item carrying mandatory rules, or a rejection
// inside a cluster a mandatory item belongs to, rejects the job. Any other
// non-approved item or non-compliant cluster sends the job to review.
//
// Confidence policy: the minimum confidence among rules contributing to a
// Rejected or Needs Review verdict (worst-case signal); on approval, the
// mean confidence across satisfied mandatory rules, falling back to all
// satisfied rules when no rule is mandatory.
func Aggregate(items []jobs.ItemInstance, clusters map[int]*ClusterVerdict) (jobs.AssessmentStatus, *float64) {
	rejected := false
	review := false
	for i := range items {
		it := &items[i]
		switch it.Status {
		case jobs.StatusRejected:
			if hasMandatoryRule(it) {
				rejected = true
			} else {
				review = true
			}
		case jobs.StatusNeedsReview:
			review = true
		}
	}
	for _, cv := range clusters {
		if cv.Compliant {
			continue
		}
		if cv.HasMandatory && cv.HasRejected {
			rejected = true
		} else {
			review = true
		}
	}

	verdict := jobs.StatusApproved
	if rejected {
		verdict = jobs.StatusRejected
	} else if review {
		verdict = jobs.StatusNeedsReview
	}

	return verdict, confidenceFor(verdict, items)
}

func confidenceFor(verdict jobs.AssessmentStatus, items []jobs.ItemInstance) *float64 {
	if verdict == jobs.StatusApproved {
		sum, n := 0.0, 0
		mandatoryOnly := false
		for i := range items {
			if hasMandatoryRule(&items[i]) {
				mandatoryOnly = true
				break
			}
		}
		for i := range items {
			for _, o := range items[i].RuleOutcomes {
				if !o.Satisfied {
					continue
				}
				if mandatoryOnly && !o.Mandatory {
					continue
				}
				sum += o.Confidence
				n++
			}
		}
		if n == 0 {
			return nil
		}
		mean := sum / float64(n)
		return &mean
	}

	// Worst-case signal: the least confident failing contribution.
	var min *float64
	for i := range items {
		for _, o := range items[i].RuleOutcomes {
			if o.Satisfied && !o.NeedsReview {
				continue
			}
			c := o.Confidence
			if min == nil || c < *min {
				min = &c
			}
		}
	}
	return min
}

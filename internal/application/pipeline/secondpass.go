package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/llmconfig"
)

// secondPass re-evaluates rules that pass one did not settle decisively:
// outcomes marked for review, or with confidence within the configured
// margin of the rule threshold. The re-run result replaces the original
// only when it is strictly more decisive; ties keep the first pass.
// Second-pass cost always accrues to the job.
func (o *Orchestrator) secondPass(ctx context.Context, j *jobs.VerificationJob, candidates []candidate, snap llmconfig.Snapshot, opts Options) (bool, error) {
	changed := false
	now := o.Clock.Now().Unix()

	for i := range j.Items {
		it := &j.Items[i]
		var ambiguousIdx []int
		for ri, outcome := range it.RuleOutcomes {
			if isAmbiguous(outcome, opts.SecondPassMargin) {
				ambiguousIdx = append(ambiguousIdx, ri)
			}
		}
		if len(ambiguousIdx) == 0 {
			continue
		}

		kept, _ := FilterByLabels(it, candidates)
		grids, err := o.buildGrids(kept, opts)
		if err != nil {
			return false, fmt.Errorf("second pass item %s: composing grids: %w", it.ID, err)
		}
		contexts := o.agentContexts(ctx, j, it, opts)

		for _, ri := range ambiguousIdx {
			first := it.RuleOutcomes[ri]
			rule := it.DescriptionRulesApplied[ri]
			o.jobLog(ctx, j.ID, "info", fmt.Sprintf("item %s: second pass for rule %s", it.Name, rule.ID))

			second, err := o.evaluateRule(ctx, j, it, rule, grids, contexts, snap, opts, true)
			if err != nil {
				return false, fmt.Errorf("second pass item %s: %w", it.ID, err)
			}
			j.TotalCost += second.Cost

			if decisiveness(second, rule.MinConfidence) > decisiveness(first, rule.MinConfidence) {
				// Keep both costs on the record.
				second.Cost += first.Cost
				it.RuleOutcomes[ri] = second
				changed = true
				o.logOutcome(ctx, j.ID, it, second)
				o.recordChecks(ctx, j.ID, it, second, now)
			} else {
				it.RuleOutcomes[ri].Cost += second.Cost
				o.jobLog(ctx, j.ID, "info", fmt.Sprintf(
					"item %s: second pass inconclusive for rule %s (kept first-pass result)", it.Name, rule.ID))
			}
		}
	}
	return changed, nil
}

// isAmbiguous reports whether a first-pass outcome qualifies for
// re-verification.
func isAmbiguous(o jobs.RuleOutcome, margin float64) bool {
	if o.NeedsReview {
		return true
	}
	return math.Abs(o.Confidence-o.MinConfidence) <= margin
}

// decisiveness measures how far an outcome sits from the rule threshold.
// Review outcomes rank below any scored outcome.
func decisiveness(o jobs.RuleOutcome, threshold float64) float64 {
	if o.NeedsReview {
		return -1
	}
	return math.Abs(o.Confidence - threshold)
}

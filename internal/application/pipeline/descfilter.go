package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/veriscope/veriscope/internal/domain/catalog"
	"github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/llmconfig"
	"github.com/veriscope/veriscope/internal/domain/vision"
	"github.com/veriscope/veriscope/internal/infra/ai/prompt"
)

// evaluateRules runs every description rule of one item against the
// composite grids, bounded fan-out, results reassembled by rule index so
// ordering is deterministic.
func (o *Orchestrator) evaluateRules(ctx context.Context, j *jobs.VerificationJob, it *jobs.ItemInstance, grids []vision.GridImage, contexts []string, snap llmconfig.Snapshot, opts Options) error {
	rules := it.DescriptionRulesApplied
	outcomes := make([]jobs.RuleOutcome, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range rules {
		i := i
		g.Go(func() error {
			outcome, err := o.evaluateRule(gctx, j, it, rules[i], grids, contexts, snap, opts, false)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("item %s: %w", it.ID, err)
	}

	it.RuleOutcomes = outcomes
	now := o.Clock.Now().Unix()
	for _, outcome := range outcomes {
		j.TotalCost += outcome.Cost
		o.logOutcome(ctx, j.ID, it, outcome)
		o.recordChecks(ctx, j.ID, it, outcome, now)
	}
	return nil
}

// evaluateRule performs one reasoning call with bounded retry on transient
// provider errors. Exhausted retries degrade the rule to a review signal
// instead of failing the job.
func (o *Orchestrator) evaluateRule(ctx context.Context, j *jobs.VerificationJob, it *jobs.ItemInstance, rule catalog.DescriptionFilteringRule, grids []vision.GridImage, contexts []string, snap llmconfig.Snapshot, opts Options, secondPass bool) (jobs.RuleOutcome, error) {
	outcome := jobs.RuleOutcome{
		RuleID:        rule.ID,
		Description:   rule.Description,
		Mandatory:     rule.Mandatory,
		MinConfidence: rule.MinConfidence,
		SecondPass:    secondPass,
	}

	// Nothing survived the label filter: no reasoning call to make.
	if len(grids) == 0 {
		outcome.Reasoning = "no candidate files after filtering"
		return outcome, nil
	}

	ruleContexts := contexts
	if j.SearchInternet && o.Searcher != nil {
		cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		text, err := o.Searcher.Search(cctx, rule.Description)
		cancel()
		if err != nil {
			o.jobLog(ctx, j.ID, "warn", fmt.Sprintf("item %s: web search failed for rule %s: %v", it.Name, rule.ID, err))
		} else if strings.TrimSpace(text) != "" {
			ruleContexts = append(append([]string{}, contexts...), text)
		}
	}

	systemPrompt := snap.SystemPrompt
	if secondPass && snap.SecondPassPrompt != "" {
		systemPrompt = snap.SecondPassPrompt
	}
	req := vision.AssessRequest{
		Model:        snap.ModelID,
		SystemPrompt: systemPrompt,
		UserText:     prompt.GetRuleUserPrompt(it.Name, rule.Description, ruleContexts),
		Grids:        grids,
	}

	var assessment *vision.Assessment
	attempt := 0
	operation := func() error {
		attempt++
		cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		defer cancel()
		a, err := o.Assessor.Assess(cctx, req)
		if err != nil {
			if errors.Is(err, vision.ErrThrottled) {
				return err
			}
			return backoff.Permanent(err)
		}
		assessment = a
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(opts.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, vision.ErrThrottled) {
			outcome.NeedsReview = true
			outcome.Reasoning = fmt.Sprintf("evaluation failed after %d attempts: %v", attempt, err)
			return outcome, nil
		}
		return outcome, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	outcome.ImageFound = assessment.ImageFound
	outcome.Confidence = assessment.Confidence
	outcome.Reasoning = assessment.Reasoning
	outcome.MatchedFileIDs = assessment.MatchedFileIDs
	outcome.Cost = assessment.Cost
	outcome.Satisfied = assessment.ImageFound && assessment.Confidence >= rule.MinConfidence
	return outcome, nil
}

func (o *Orchestrator) logOutcome(ctx context.Context, id jobs.JobID, it *jobs.ItemInstance, outcome jobs.RuleOutcome) {
	switch {
	case outcome.NeedsReview:
		o.jobLog(ctx, id, "warn", fmt.Sprintf("item %s: rule %s needs review: %s", it.Name, outcome.RuleID, outcome.Reasoning))
	case outcome.Satisfied:
		o.jobLog(ctx, id, "info", fmt.Sprintf(
			"item %s: rule %s satisfied (confidence %.2f, files %v)", it.Name, outcome.RuleID, outcome.Confidence, outcome.MatchedFileIDs))
	default:
		o.jobLog(ctx, id, "info", fmt.Sprintf(
			"item %s: rule %s not satisfied (imageFound=%t, confidence %.2f)", it.Name, outcome.RuleID, outcome.ImageFound, outcome.Confidence))
	}
}

// recordChecks writes the per-file trail for one rule outcome. The call
// cost is attributed to the first matched file only so summing checks
// never double-counts a composite call. A call that matched no files
// still writes one item-level row so the trail accounts for its cost.
func (o *Orchestrator) recordChecks(ctx context.Context, id jobs.JobID, it *jobs.ItemInstance, outcome jobs.RuleOutcome, now int64) {
	if len(outcome.MatchedFileIDs) == 0 {
		status := jobs.FileIgnored
		if outcome.NeedsReview {
			status = jobs.FileNeedsReview
		}
		o.appendCheck(ctx, id, jobs.FileCheck{
			ItemInstanceID:  it.ID,
			RuleID:          outcome.RuleID,
			Status:          status,
			StatusReasoning: outcome.Reasoning,
			Confidence:      outcome.Confidence,
			Cost:            outcome.Cost,
			CreatedAt:       now,
		})
		return
	}
	for i, fid := range outcome.MatchedFileIDs {
		check := jobs.FileCheck{
			ItemInstanceID:  it.ID,
			FileInstanceID:  fid,
			RuleID:          outcome.RuleID,
			Status:          jobs.FileRelevant,
			StatusReasoning: outcome.Reasoning,
			Confidence:      outcome.Confidence,
			CreatedAt:       now,
		}
		if i == 0 {
			check.Cost = outcome.Cost
		}
		o.appendCheck(ctx, id, check)
	}
}

// detectWithRetry wraps the object-detection call with the same bounded
// backoff policy used for reasoning calls.
func (o *Orchestrator) detectWithRetry(ctx context.Context, data []byte, opts Options) ([]vision.Label, error) {
	var labels []vision.Label
	operation := func() error {
		cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		defer cancel()
		l, err := o.Detector.Detect(cctx, data)
		if err != nil {
			if errors.Is(err, vision.ErrThrottled) {
				return err
			}
			return backoff.Permanent(err)
		}
		labels = l
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(opts.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return labels, nil
}

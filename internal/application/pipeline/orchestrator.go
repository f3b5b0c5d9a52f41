package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veriscope/veriscope/internal/application"
	"github.com/veriscope/veriscope/internal/domain/augment"
	"github.com/veriscope/veriscope/internal/domain/catalog"
	"github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/llmconfig"
	"github.com/veriscope/veriscope/internal/domain/vision"
	"github.com/veriscope/veriscope/internal/infra/ai/prompt"
)

// imageContentTypes are the only file types the pipeline will assess.
var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

// Options tune one orchestrator instance.
type Options struct {
	Concurrency      int
	MaxAttempts      int
	SecondPassMargin float64
	MaxImagesPerCall int
	CallTimeout      time.Duration
	Defaults         llmconfig.Snapshot
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.SecondPassMargin <= 0 {
		o.SecondPassMargin = 0.1
	}
	if o.MaxImagesPerCall <= 0 {
		o.MaxImagesPerCall = 20
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 2 * time.Minute
	}
	return o
}

// Orchestrator runs one verification job end to end: claim, stage cascade,
// verdict, persist. Safe for concurrent use; per-job state lives on the
// stack of Execute.
type Orchestrator struct {
	Jobs      jobs.Repository
	Logs      jobs.LogStore
	Checks    jobs.FileCheckStore
	Catalog   catalog.Repository
	Files     vision.FileStore
	Detector  vision.Detector
	Assessor  vision.Assessor
	Searcher  vision.Searcher
	Augmenter augment.Augmenter
	Grids     vision.GridBuilder
	Config    llmconfig.Store
	Clock     application.Clock
	Logger    *slog.Logger
	Opts      Options
}

// Execute processes one job delivery. A duplicate delivery (job no longer
// Pending) is a no-op returning the current status. The returned error is
// reserved for infrastructure failures where redelivery may help; pipeline
// failures end the job in Error status with a nil error.
func (o *Orchestrator) Execute(ctx context.Context, id jobs.JobID) (jobs.AssessmentStatus, error) {
	opts := o.Opts.withDefaults()

	claimed, err := o.Jobs.ClaimForAssessment(ctx, id)
	if err != nil {
		return "", fmt.Errorf("claiming job %s: %w", id, err)
	}
	if !claimed {
		j, err := o.Jobs.Get(ctx, id)
		if err != nil {
			return "", fmt.Errorf("loading unclaimed job %s: %w", id, err)
		}
		o.Logger.Info("duplicate delivery ignored", "job", id, "status", j.Status)
		return j.Status, nil
	}

	j, err := o.Jobs.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("loading job %s: %w", id, err)
	}
	j.Status = jobs.StatusAssessing
	o.jobLog(ctx, j.ID, "info", "assessment started")

	snap, err := llmconfig.Load(ctx, o.Config, opts.Defaults)
	if err != nil {
		return o.failJob(ctx, j, fmt.Errorf("loading llm config: %w", err))
	}

	candidates := o.prepareFiles(ctx, j, opts)
	o.jobLog(ctx, j.ID, "info",
		fmt.Sprintf("file preparation done: %d of %d files assessable", len(candidates), len(j.Files)))

	for i := range j.Items {
		if err := o.runItem(ctx, j, &j.Items[i], candidates, snap, opts); err != nil {
			return o.failJob(ctx, j, err)
		}
	}

	clusters := ResolveClusters(j.Items)
	o.logClusters(ctx, j.ID, clusters)
	verdict, confidence := Aggregate(j.Items, clusters)

	if snap.SecondPass {
		changed, err := o.secondPass(ctx, j, candidates, snap, opts)
		if err != nil {
			return o.failJob(ctx, j, err)
		}
		if changed {
			clusters = ResolveClusters(j.Items)
			o.logClusters(ctx, j.ID, clusters)
		}
		verdict, confidence = Aggregate(j.Items, clusters)
	}

	o.finalizeFiles(j, candidates)
	if err := j.Transition(verdict); err != nil {
		return o.failJob(ctx, j, err)
	}
	j.Confidence = confidence
	j.UpdatedAt = o.Clock.Now().Unix()
	if err := o.Jobs.Save(ctx, j); err != nil {
		return "", fmt.Errorf("persisting job %s: %w", id, err)
	}

	conf := 0.0
	if confidence != nil {
		conf = *confidence
	}
	o.jobLog(ctx, j.ID, "info",
		fmt.Sprintf("assessment finished: status=%s confidence=%.2f cost=%.4f", verdict, conf, j.TotalCost))
	return verdict, nil
}

// prepareFiles fetches bytes, drops non-images and duplicates, and runs
// label detection once per surviving file. Per-file failures are contained.
func (o *Orchestrator) prepareFiles(ctx context.Context, j *jobs.VerificationJob, opts Options) []candidate {
	type fetched struct {
		data []byte
		err  error
	}
	results := make([]fetched, len(j.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range j.Files {
		f := &j.Files[i]
		if !imageContentTypes[strings.ToLower(f.ContentType)] {
			continue
		}
		i := i
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, opts.CallTimeout)
			defer cancel()
			data, err := o.Files.Get(cctx, f.StorageKey)
			results[i] = fetched{data: data, err: err}
			return nil
		})
	}
	// Workers never return errors; Wait only collects the semaphore.
	_ = g.Wait()

	seen := make(map[string]string)
	var candidates []candidate
	for i := range j.Files {
		f := &j.Files[i]
		if !imageContentTypes[strings.ToLower(f.ContentType)] {
			f.Status = jobs.FileIgnored
			f.StatusReasoning = fmt.Sprintf("unsupported content type %q", f.ContentType)
			o.jobLog(ctx, j.ID, "info", fmt.Sprintf("file %s ignored: %s", f.Filename, f.StatusReasoning))
			continue
		}
		if results[i].err != nil {
			f.Status = jobs.FileError
			f.StatusReasoning = fmt.Sprintf("fetch failed: %v", results[i].err)
			o.jobLog(ctx, j.ID, "warn", fmt.Sprintf("file %s excluded: %s", f.Filename, f.StatusReasoning))
			continue
		}
		sum := sha256.Sum256(results[i].data)
		digest := hex.EncodeToString(sum[:])
		if orig, dup := seen[digest]; dup {
			f.Status = jobs.FileIgnored
			f.StatusReasoning = fmt.Sprintf("duplicate of file %s", orig)
			o.jobLog(ctx, j.ID, "info", fmt.Sprintf("file %s ignored: %s", f.Filename, f.StatusReasoning))
			continue
		}
		seen[digest] = f.ID
		f.Status = jobs.FileAssessing
		candidates = append(candidates, candidate{file: f, data: results[i].data})
	}

	// Label detection, once per file, cached on the candidate across items.
	dg, dctx := errgroup.WithContext(ctx)
	dg.SetLimit(opts.Concurrency)
	errsByIdx := make([]error, len(candidates))
	for i := range candidates {
		i := i
		dg.Go(func() error {
			labels, err := o.detectWithRetry(dctx, candidates[i].data, opts)
			if err != nil {
				errsByIdx[i] = err
				return nil
			}
			candidates[i].labels = labels
			return nil
		})
	}
	_ = dg.Wait()

	kept := candidates[:0]
	for i := range candidates {
		if errsByIdx[i] != nil {
			f := candidates[i].file
			f.Status = jobs.FileError
			f.StatusReasoning = fmt.Sprintf("label detection failed: %v", errsByIdx[i])
			o.jobLog(ctx, j.ID, "warn", fmt.Sprintf("file %s excluded: %s", f.Filename, f.StatusReasoning))
			continue
		}
		kept = append(kept, candidates[i])
	}
	return kept
}

// runItem applies the label filter then evaluates the item's description
// rules against the surviving files.
func (o *Orchestrator) runItem(ctx context.Context, j *jobs.VerificationJob, it *jobs.ItemInstance, candidates []candidate, snap llmconfig.Snapshot, opts Options) error {
	it.Status = jobs.StatusAssessing
	now := o.Clock.Now().Unix()

	kept, excluded := FilterByLabels(it, candidates)
	for _, ex := range excluded {
		o.jobLog(ctx, j.ID, "info", fmt.Sprintf(
			"item %s: file %s excluded by label rule %s (label %q, confidence %.2f, area %.2f)",
			it.Name, ex.FileID, ex.RuleID, ex.Label.Name, ex.Label.Confidence, ex.Label.AreaFraction))
		o.appendCheck(ctx, j.ID, jobs.FileCheck{
			ItemInstanceID:  it.ID,
			FileInstanceID:  ex.FileID,
			RuleID:          ex.RuleID,
			Status:          jobs.FileIgnored,
			StatusReasoning: fmt.Sprintf("matched exclusion label %q", ex.Label.Name),
			Confidence:      ex.Label.Confidence,
			CreatedAt:       now,
		})
	}

	grids, err := o.buildGrids(kept, opts)
	if err != nil {
		return fmt.Errorf("item %s: composing grids: %w", it.ID, err)
	}
	o.markUnplaced(ctx, j, kept, grids)

	contexts := o.agentContexts(ctx, j, it, opts)
	if err := o.evaluateRules(ctx, j, it, grids, contexts, snap, opts); err != nil {
		return err
	}
	it.UpdatedAt = o.Clock.Now().Unix()
	return nil
}

func (o *Orchestrator) buildGrids(kept []candidate, opts Options) ([]vision.GridImage, error) {
	if len(kept) == 0 {
		return nil, nil
	}
	sources := make([]vision.GridSource, 0, len(kept))
	for _, c := range kept {
		sources = append(sources, vision.GridSource{FileID: c.file.ID, Data: c.data})
	}
	return o.Grids.Build(sources, opts.MaxImagesPerCall)
}

// markUnplaced flags files the grid composer skipped, which happens when
// stored bytes do not decode as an image despite the declared content
// type. The file fails in isolation; the item continues on what remains.
func (o *Orchestrator) markUnplaced(ctx context.Context, j *jobs.VerificationJob, kept []candidate, grids []vision.GridImage) {
	placed := make(map[string]bool)
	for _, g := range grids {
		for _, fid := range g.Positions {
			placed[fid] = true
		}
	}
	for _, c := range kept {
		if placed[c.file.ID] || c.file.Status == jobs.FileError {
			continue
		}
		c.file.Status = jobs.FileError
		c.file.StatusReasoning = "image data could not be decoded for grid composition"
		o.jobLog(ctx, j.ID, "warn", fmt.Sprintf("file %s excluded: %s", c.file.Filename, c.file.StatusReasoning))
	}
}

// agentContexts gathers best-effort supporting text from the item's
// agents. Provider errors never fail the pipeline.
func (o *Orchestrator) agentContexts(ctx context.Context, j *jobs.VerificationJob, it *jobs.ItemInstance, opts Options) []string {
	if o.Augmenter == nil || len(it.AgentIDs) == 0 {
		return nil
	}
	var contexts []string
	for _, agentID := range it.AgentIDs {
		agent, err := o.Catalog.GetAgent(ctx, agentID)
		if err != nil {
			o.jobLog(ctx, j.ID, "warn", fmt.Sprintf("item %s: agent %s unavailable: %v", it.Name, agentID, err))
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		text, err := o.Augmenter.Lookup(cctx, agent, prompt.GetAugmentQuery(agent.Prompt, it.Name, it.Description))
		cancel()
		if err != nil {
			o.jobLog(ctx, j.ID, "warn", fmt.Sprintf("item %s: agent %s lookup failed: %v", it.Name, agent.Name, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			contexts = append(contexts, text)
		}
	}
	return contexts
}

// finalizeFiles sets terminal per-file statuses: referenced by a satisfied
// rule means relevant, everything else still assessing is ignored.
func (o *Orchestrator) finalizeFiles(j *jobs.VerificationJob, candidates []candidate) {
	approved := make(map[string]bool)
	for i := range j.Items {
		it := &j.Items[i]
		var ids []string
		for _, outcome := range it.RuleOutcomes {
			if !outcome.Satisfied {
				continue
			}
			for _, fid := range outcome.MatchedFileIDs {
				approved[fid] = true
				ids = append(ids, fid)
			}
		}
		it.ApprovedFileIDs = dedupe(ids)
	}
	for _, c := range candidates {
		if c.file.Status == jobs.FileError {
			continue
		}
		if approved[c.file.ID] {
			c.file.Status = jobs.FileRelevant
			c.file.StatusReasoning = "matched at least one satisfied rule"
		} else {
			c.file.Status = jobs.FileIgnored
			c.file.StatusReasoning = "not matched by any satisfied rule"
		}
	}
}

func (o *Orchestrator) logClusters(ctx context.Context, id jobs.JobID, clusters map[int]*ClusterVerdict) {
	for num, cv := range clusters {
		state := "compliant"
		if !cv.Compliant {
			state = "non-compliant"
		}
		o.jobLog(ctx, id, "info", fmt.Sprintf("cluster %d %s (%d members)", num, state, len(cv.MemberIDs)))
	}
}

// failJob ends the job in Error status. Persisting the failure is the one
// write that must succeed; if it cannot, the error propagates so the queue
// redelivers.
func (o *Orchestrator) failJob(ctx context.Context, j *jobs.VerificationJob, cause error) (jobs.AssessmentStatus, error) {
	o.jobLog(ctx, j.ID, "error", cause.Error())
	j.Status = jobs.StatusError
	j.ErrorMessage = cause.Error()
	j.UpdatedAt = o.Clock.Now().Unix()
	if err := o.Jobs.Save(ctx, j); err != nil {
		return "", fmt.Errorf("persisting failed job %s: %w", j.ID, err)
	}
	return jobs.StatusError, nil
}

func (o *Orchestrator) jobLog(ctx context.Context, id jobs.JobID, level, msg string) {
	entry := jobs.LogEntry{
		ID:        uuid.NewString(),
		JobID:     id,
		Timestamp: o.Clock.Now().UnixMilli(),
		Level:     level,
		Message:   msg,
	}
	if err := o.Logs.Append(ctx, entry); err != nil {
		o.Logger.Warn("job log append failed", "job", id, "err", err)
	}
	switch level {
	case "error":
		o.Logger.Error(msg, "job", id)
	case "warn":
		o.Logger.Warn(msg, "job", id)
	default:
		o.Logger.Info(msg, "job", id)
	}
}

func (o *Orchestrator) appendCheck(ctx context.Context, id jobs.JobID, c jobs.FileCheck) {
	if err := o.Checks.Append(ctx, id, c); err != nil {
		o.Logger.Warn("file check append failed", "job", id, "err", err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veriscope/veriscope/internal/application"
	"github.com/veriscope/veriscope/internal/domain/catalog"
	domain "github.com/veriscope/veriscope/internal/domain/jobs"
	"github.com/veriscope/veriscope/internal/domain/llmconfig"
	"github.com/veriscope/veriscope/internal/domain/vision"
)

// presignExpiry bounds how long file download links stay valid.
const presignExpiry = time.Hour

// Service implements the job lifecycle use-cases outside the pipeline:
// creation with snapshotting, inspection, requeue, deletion.
// Safe for concurrent use.
type Service struct {
	Jobs     domain.Repository
	Logs     domain.LogStore
	Checks   domain.FileCheckStore
	Catalog  catalog.Repository
	Queue    domain.Queue
	Files    vision.FileStore
	Detector vision.Detector
	Assessor vision.Assessor
	Grids    vision.GridBuilder
	Config   llmconfig.Store
	Clock    application.Clock
}

type CreateJobCommand struct {
	CollectionID   string `json:"collection_id"`
	SearchInternet bool   `json:"search_internet"`
}

// CreateJob snapshots the collection's items and files into a new Pending
// job and enqueues it. The snapshot is immutable: later item edits never
// affect an already-created job.
func (s *Service) CreateJob(ctx context.Context, cmd CreateJobCommand) (*domain.VerificationJob, error) {
	col, err := s.Catalog.GetCollection(ctx, cmd.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("loading collection %s: %w", cmd.CollectionID, err)
	}

	now := s.Clock.Now().Unix()
	j := &domain.VerificationJob{
		ID:             domain.JobID(uuid.NewString()),
		CreatedAt:      now,
		UpdatedAt:      now,
		CollectionID:   col.ID,
		Status:         domain.StatusPending,
		SearchInternet: cmd.SearchInternet,
	}

	for _, item := range col.Items {
		j.Items = append(j.Items, snapshotItem(item, now))
	}
	for _, f := range col.Files {
		j.Files = append(j.Files, domain.CollectionFileInstance{
			CollectionFile: f,
			Status:         domain.FilePending,
		})
	}

	if err := s.Jobs.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}
	if err := s.Queue.Enqueue(ctx, j.ID); err != nil {
		// The job stays Pending and can be pushed again via requeue.
		return j, fmt.Errorf("enqueueing job %s: %w", j.ID, err)
	}
	s.appendLog(ctx, j.ID, "info", fmt.Sprintf("job created for collection %s (%d items, %d files)",
		col.ID, len(j.Items), len(j.Files)))
	return j, nil
}

func snapshotItem(item catalog.Item, now int64) domain.ItemInstance {
	inst := domain.ItemInstance{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Name:          item.Name,
		Description:   item.Description,
		AgentIDs:      append([]string(nil), item.AgentIDs...),
		ClusterNumber: item.ClusterNumber,
		Status:        domain.StatusPending,
	}
	inst.LabelRulesApplied = append(inst.LabelRulesApplied, item.LabelFilteringRules...)
	inst.DescriptionRulesApplied = append(inst.DescriptionRulesApplied, item.DescriptionFilteringRules...)
	return inst
}

func (s *Service) Get(ctx context.Context, id domain.JobID) (*domain.VerificationJob, error) {
	return s.Jobs.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page, pageSize int) (domain.PaginatedJobs, error) {
	return s.Jobs.Paginate(ctx, page, pageSize)
}

// Requeue resets a finished (or still pending) job and pushes it back on
// the queue. Assessing jobs are refused: their status is the executor's
// lock.
func (s *Service) Requeue(ctx context.Context, id domain.JobID) (*domain.VerificationJob, error) {
	j, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanRequeue(j.Status) {
		return nil, fmt.Errorf("%w: cannot requeue job in status %s", domain.ErrInvalidTransition, j.Status)
	}

	now := s.Clock.Now().Unix()
	j.Status = domain.StatusPending
	j.Confidence = nil
	j.TotalCost = 0
	j.ErrorMessage = ""
	j.UpdatedAt = now
	for i := range j.Items {
		it := &j.Items[i]
		it.Status = domain.StatusPending
		it.Confidence = nil
		it.AssessmentReasoning = ""
		it.ApprovedFileIDs = nil
		it.RuleOutcomes = nil
		it.UpdatedAt = now
	}
	for i := range j.Files {
		j.Files[i].Status = domain.FilePending
		j.Files[i].StatusReasoning = ""
	}

	if err := s.Checks.DeleteForJob(ctx, id); err != nil {
		return nil, fmt.Errorf("clearing file checks for job %s: %w", id, err)
	}
	if err := s.Jobs.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("saving requeued job %s: %w", id, err)
	}
	if err := s.Queue.Enqueue(ctx, j.ID); err != nil {
		return j, fmt.Errorf("enqueueing job %s: %w", j.ID, err)
	}
	s.appendLog(ctx, j.ID, "info", "job requeued by operator")
	return j, nil
}

func (s *Service) Delete(ctx context.Context, id domain.JobID) error {
	if err := s.Checks.DeleteForJob(ctx, id); err != nil {
		return fmt.Errorf("clearing file checks for job %s: %w", id, err)
	}
	return s.Jobs.Delete(ctx, id)
}

func (s *Service) QueryLogs(ctx context.Context, id domain.JobID, q domain.LogQuery) (domain.LogPage, error) {
	return s.Logs.Query(ctx, id, q)
}

func (s *Service) FileChecks(ctx context.Context, id domain.JobID, itemInstanceID string) ([]domain.FileCheck, error) {
	return s.Checks.ListForItem(ctx, id, itemInstanceID)
}

// FileURLs returns presigned download links for the job's files, keyed by
// file instance id.
func (s *Service) FileURLs(ctx context.Context, id domain.JobID) (map[string]string, error) {
	j, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]string, len(j.Files))
	for _, f := range j.Files {
		u, err := s.Files.PresignedGet(ctx, f.StorageKey, presignExpiry)
		if err != nil {
			return nil, fmt.Errorf("presigning file %s: %w", f.ID, err)
		}
		urls[f.ID] = u
	}
	return urls, nil
}

func (s *Service) appendLog(ctx context.Context, id domain.JobID, level, msg string) {
	_ = s.Logs.Append(ctx, domain.LogEntry{
		ID:        uuid.NewString(),
		JobID:     id,
		Timestamp: s.Clock.Now().UnixMilli(),
		Level:     level,
		Message:   msg,
	})
}

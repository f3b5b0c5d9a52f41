package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriscope/veriscope/internal/domain/catalog"
	domain "github.com/veriscope/veriscope/internal/domain/jobs"
)

type stubClock struct{ t time.Time }

func (c stubClock) Now() time.Time { return c.t }

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[domain.JobID]*domain.VerificationJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[domain.JobID]*domain.VerificationJob)}
}

func (r *memJobRepo) Save(_ context.Context, j *domain.VerificationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memJobRepo) Get(_ context.Context, id domain.JobID) (*domain.VerificationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) Paginate(context.Context, int, int) (domain.PaginatedJobs, error) {
	return domain.PaginatedJobs{}, nil
}

func (r *memJobRepo) Delete(_ context.Context, id domain.JobID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *memJobRepo) ClaimForAssessment(_ context.Context, id domain.JobID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != domain.StatusPending {
		return false, nil
	}
	j.Status = domain.StatusAssessing
	return true, nil
}

type memLogStore struct{ entries []domain.LogEntry }

func (s *memLogStore) Append(_ context.Context, e domain.LogEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *memLogStore) Query(context.Context, domain.JobID, domain.LogQuery) (domain.LogPage, error) {
	return domain.LogPage{Entries: s.entries}, nil
}

type memCheckStore struct {
	checks  map[domain.JobID][]domain.FileCheck
	deletes int
}

func newMemCheckStore() *memCheckStore {
	return &memCheckStore{checks: make(map[domain.JobID][]domain.FileCheck)}
}

func (s *memCheckStore) Append(_ context.Context, id domain.JobID, c domain.FileCheck) error {
	s.checks[id] = append(s.checks[id], c)
	return nil
}

func (s *memCheckStore) ListForItem(_ context.Context, id domain.JobID, _ string) ([]domain.FileCheck, error) {
	return s.checks[id], nil
}

func (s *memCheckStore) DeleteForJob(_ context.Context, id domain.JobID) error {
	s.deletes++
	delete(s.checks, id)
	return nil
}

type stubCatalog struct{ collection *catalog.Collection }

func (c *stubCatalog) GetItem(context.Context, string) (*catalog.Item, error) {
	return nil, catalog.ErrNotFound
}

func (c *stubCatalog) GetCollection(_ context.Context, id string) (*catalog.Collection, error) {
	if c.collection != nil && c.collection.ID == id {
		return c.collection, nil
	}
	return nil, catalog.ErrNotFound
}

func (c *stubCatalog) GetAgent(context.Context, string) (*catalog.Agent, error) {
	return nil, catalog.ErrNotFound
}

func (c *stubCatalog) ListAgentsForItem(context.Context, string) ([]*catalog.Agent, error) {
	return nil, nil
}

type recordingQueue struct{ enqueued []domain.JobID }

func (q *recordingQueue) Enqueue(_ context.Context, id domain.JobID) error {
	q.enqueued = append(q.enqueued, id)
	return nil
}

func (q *recordingQueue) Receive(context.Context) (*domain.Message, error) { return nil, nil }
func (q *recordingQueue) Delete(context.Context, *domain.Message) error    { return nil }

func testCollection() *catalog.Collection {
	return &catalog.Collection{
		ID: "col-1",
		Items: []catalog.Item{
			{
				ID:   "item-1",
				Name: "corrosion check",
				DescriptionFilteringRules: []catalog.DescriptionFilteringRule{
					{ID: "r1", Description: "visible rust", MinConfidence: 0.7, Mandatory: true},
				},
				LabelFilteringRules: []catalog.LabelFilteringRule{
					{ID: "l1", ImageLabels: []string{"blurry"}, MinConfidence: 0.6, MinImageSizePercent: 0.2},
				},
			},
		},
		Files: []catalog.CollectionFile{
			{ID: "file-1", StorageKey: "k1", Filename: "a.jpg", ContentType: "image/jpeg"},
		},
	}
}

func newService(col *catalog.Collection) (*Service, *memJobRepo, *memCheckStore, *recordingQueue) {
	repo := newMemJobRepo()
	checks := newMemCheckStore()
	queue := &recordingQueue{}
	svc := &Service{
		Jobs:    repo,
		Logs:    &memLogStore{},
		Checks:  checks,
		Catalog: &stubCatalog{collection: col},
		Queue:   queue,
		Clock:   stubClock{t: time.Unix(1700000000, 0)},
	}
	return svc, repo, checks, queue
}

func TestCreateJobSnapshotsAndEnqueues(t *testing.T) {
	col := testCollection()
	svc, repo, _, queue := newService(col)

	j, err := svc.CreateJob(context.Background(), CreateJobCommand{CollectionID: "col-1", SearchInternet: true})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, j.Status)
	assert.True(t, j.SearchInternet)
	require.Len(t, j.Items, 1)
	assert.Equal(t, "item-1", j.Items[0].ItemID)
	assert.NotEmpty(t, j.Items[0].ID, "item instances get their own ids")
	assert.Equal(t, domain.StatusPending, j.Items[0].Status)
	require.Len(t, j.Files, 1)
	assert.Equal(t, domain.FilePending, j.Files[0].Status)

	assert.Equal(t, []domain.JobID{j.ID}, queue.enqueued)
	_, err = repo.Get(context.Background(), j.ID)
	assert.NoError(t, err)
}

func TestCreateJobSnapshotIsImmutable(t *testing.T) {
	col := testCollection()
	svc, repo, _, _ := newService(col)

	j, err := svc.CreateJob(context.Background(), CreateJobCommand{CollectionID: "col-1"})
	require.NoError(t, err)

	// Mutate the catalog after creation; the stored job must not move.
	col.Items[0].DescriptionFilteringRules[0].MinConfidence = 0.99
	col.Items[0].Name = "renamed"
	col.Items[0].DescriptionFilteringRules = append(col.Items[0].DescriptionFilteringRules,
		catalog.DescriptionFilteringRule{ID: "r2", Description: "added later"})

	saved, err := repo.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, "corrosion check", saved.Items[0].Name)
	require.Len(t, saved.Items[0].DescriptionRulesApplied, 1)
	assert.InDelta(t, 0.7, saved.Items[0].DescriptionRulesApplied[0].MinConfidence, 1e-9)
}

func TestCreateJobUnknownCollection(t *testing.T) {
	svc, _, _, queue := newService(testCollection())

	_, err := svc.CreateJob(context.Background(), CreateJobCommand{CollectionID: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Empty(t, queue.enqueued)
}

func TestRequeueResetsJob(t *testing.T) {
	svc, repo, checks, queue := newService(testCollection())

	j, err := svc.CreateJob(context.Background(), CreateJobCommand{CollectionID: "col-1"})
	require.NoError(t, err)

	// Simulate a finished run.
	conf := 0.4
	j.Status = domain.StatusRejected
	j.Confidence = &conf
	j.TotalCost = 0.12
	j.Items[0].Status = domain.StatusRejected
	j.Items[0].RuleOutcomes = []domain.RuleOutcome{{RuleID: "r1"}}
	j.Items[0].ApprovedFileIDs = []string{"file-1"}
	j.Files[0].Status = domain.FileIgnored
	require.NoError(t, repo.Save(context.Background(), j))
	require.NoError(t, checks.Append(context.Background(), j.ID, domain.FileCheck{RuleID: "r1"}))

	got, err := svc.Requeue(context.Background(), j.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.Confidence)
	assert.Zero(t, got.TotalCost)
	assert.Equal(t, domain.StatusPending, got.Items[0].Status)
	assert.Nil(t, got.Items[0].RuleOutcomes)
	assert.Nil(t, got.Items[0].ApprovedFileIDs)
	assert.Equal(t, domain.FilePending, got.Files[0].Status)
	assert.Equal(t, 1, checks.deletes)
	assert.Empty(t, checks.checks[j.ID])
	assert.Equal(t, []domain.JobID{j.ID, j.ID}, queue.enqueued)
}

func TestRequeueRefusesAssessingJob(t *testing.T) {
	svc, repo, _, _ := newService(testCollection())

	j, err := svc.CreateJob(context.Background(), CreateJobCommand{CollectionID: "col-1"})
	require.NoError(t, err)
	j.Status = domain.StatusAssessing
	require.NoError(t, repo.Save(context.Background(), j))

	_, err = svc.Requeue(context.Background(), j.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDeleteRemovesChecksAndJob(t *testing.T) {
	svc, repo, checks, _ := newService(testCollection())

	j, err := svc.CreateJob(context.Background(), CreateJobCommand{CollectionID: "col-1"})
	require.NoError(t, err)
	require.NoError(t, checks.Append(context.Background(), j.ID, domain.FileCheck{RuleID: "r1"}))

	require.NoError(t, svc.Delete(context.Background(), j.ID))
	assert.Empty(t, checks.checks[j.ID])
	_, err = repo.Get(context.Background(), j.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

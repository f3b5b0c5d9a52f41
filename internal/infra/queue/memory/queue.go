package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veriscope/veriscope/internal/domain/jobs"
)

// Queue is an in-process jobs.Queue for single-node deployments and tests.
// At-least-once semantics: an undeleted message is redelivered after the
// visibility timeout.
type Queue struct {
	ch         chan jobs.JobID
	visibility time.Duration

	mu       sync.Mutex
	inflight map[string]*time.Timer
}

func NewQueue(capacity int, visibility time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if visibility <= 0 {
		visibility = 15 * time.Minute
	}
	return &Queue{
		ch:         make(chan jobs.JobID, capacity),
		visibility: visibility,
		inflight:   make(map[string]*time.Timer),
	}
}

func (q *Queue) Enqueue(ctx context.Context, id jobs.JobID) error {
	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message arrives or the context ends. The message
// stays invisible until Delete or the visibility timeout.
func (q *Queue) Receive(ctx context.Context) (*jobs.Message, error) {
	select {
	case id := <-q.ch:
		m := &jobs.Message{JobID: id, Receipt: uuid.NewString()}
		q.mu.Lock()
		q.inflight[m.Receipt] = time.AfterFunc(q.visibility, func() {
			q.redeliver(m.Receipt, id)
		})
		q.mu.Unlock()
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Delete(_ context.Context, m *jobs.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.inflight[m.Receipt]; ok {
		t.Stop()
		delete(q.inflight, m.Receipt)
	}
	return nil
}

func (q *Queue) redeliver(receipt string, id jobs.JobID) {
	q.mu.Lock()
	_, ok := q.inflight[receipt]
	delete(q.inflight, receipt)
	q.mu.Unlock()
	if !ok {
		return
	}
	select {
	case q.ch <- id:
	default:
		// Queue full; the job stays recoverable through an operator requeue.
	}
}

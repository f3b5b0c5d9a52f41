package jobs

import (
	"context"
	"errors"
)

// ErrNotFound indicates the job does not exist.
var ErrNotFound = errors.New("jobs: not found")

// Repository port (interface for job persistence)
type Repository interface {
	Save(ctx context.Context, j *VerificationJob) error
	Get(ctx context.Context, id JobID) (*VerificationJob, error)
	Paginate(ctx context.Context, page, pageSize int) (PaginatedJobs, error)
	Delete(ctx context.Context, id JobID) error

	// ClaimForAssessment performs the conditional Pending -> Assessing write.
	// It returns false when the job is already Assessing or terminal, which
	// is the de-duplication guard against queue redelivery.
	ClaimForAssessment(ctx context.Context, id JobID) (bool, error)
}

// LogQuery filters the append-only job log.
type LogQuery struct {
	Level     string
	Contains  string
	PageToken string
	PageSize  int
}

// LogPage is one page of log entries, time-ordered.
type LogPage struct {
	Entries       []LogEntry `json:"entries"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

// LogStore port: append-only job audit trail.
type LogStore interface {
	Append(ctx context.Context, e LogEntry) error
	Query(ctx context.Context, id JobID, q LogQuery) (LogPage, error)
}

// FileCheckStore port: detailed per-rule per-file results.
type FileCheckStore interface {
	Append(ctx context.Context, id JobID, check FileCheck) error
	ListForItem(ctx context.Context, id JobID, itemInstanceID string) ([]FileCheck, error)
	DeleteForJob(ctx context.Context, id JobID) error
}

// Message is one queue delivery. Receipt identifies the delivery for ack.
type Message struct {
	JobID   JobID
	Receipt string
}

// Queue port: durable at-least-once work queue. Receive blocks up to the
// transport's wait time and may return (nil, nil) when no message arrived.
type Queue interface {
	Enqueue(ctx context.Context, id JobID) error
	Receive(ctx context.Context) (*Message, error)
	Delete(ctx context.Context, m *Message) error
}

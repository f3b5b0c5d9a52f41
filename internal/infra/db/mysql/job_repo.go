package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	domain "github.com/veriscope/veriscope/internal/domain/jobs"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Save insert/update VerificationJob record. Item and file instances are
// stored as JSON documents on the job row.
func (r *JobRepository) Save(ctx context.Context, j *domain.VerificationJob) error {
	items, err := json.Marshal(j.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	files, err := json.Marshal(j.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	const q = `
INSERT INTO verification_jobs
(id, created_at, updated_at, collection_id, status, search_internet,
 items, files, confidence, total_cost, error_message)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 updated_at=VALUES(updated_at), status=VALUES(status),
 items=VALUES(items), files=VALUES(files),
 confidence=VALUES(confidence), total_cost=VALUES(total_cost),
 error_message=VALUES(error_message);
`
	updated := j.UpdatedAt
	if updated == 0 {
		updated = time.Now().Unix()
	}
	_, err = r.db.ExecContext(ctx, q,
		j.ID, j.CreatedAt, updated, j.CollectionID, j.Status, j.SearchInternet,
		items, files, j.Confidence, j.TotalCost, j.ErrorMessage,
	)
	return err
}

// Get by ID
func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (*domain.VerificationJob, error) {
	const q = `
SELECT id, created_at, updated_at, collection_id, status, search_internet,
       items, files, confidence, total_cost, error_message
FROM verification_jobs
WHERE id=? LIMIT 1;
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.VerificationJob, error) {
	var j domain.VerificationJob
	var items, files []byte
	var confidence sql.NullFloat64
	var errMsg sql.NullString
	if err := row.Scan(
		&j.ID, &j.CreatedAt, &j.UpdatedAt, &j.CollectionID, &j.Status, &j.SearchInternet,
		&items, &files, &confidence, &j.TotalCost, &errMsg,
	); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &j.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &j.Files); err != nil {
			return nil, fmt.Errorf("unmarshal files: %w", err)
		}
	}
	if confidence.Valid {
		j.Confidence = &confidence.Float64
	}
	j.ErrorMessage = errMsg.String
	return &j, nil
}

// Paginate with offset + limit (classic pagination)
func (r *JobRepository) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedJobs, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, created_at, updated_at, collection_id, status, search_internet,
       items, files, confidence, total_cost, error_message
FROM verification_jobs
ORDER BY created_at DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return domain.PaginatedJobs{}, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.VerificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return domain.PaginatedJobs{}, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedJobs{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verification_jobs;`).Scan(&total); err != nil {
		return domain.PaginatedJobs{}, fmt.Errorf("counting jobs: %w", err)
	}

	return domain.PaginatedJobs{
		Data:       out,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Delete removes the job row.
func (r *JobRepository) Delete(ctx context.Context, id domain.JobID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_jobs WHERE id=?;`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimForAssessment is the conditional Pending -> Assessing write. The
// WHERE clause makes the claim atomic: a redelivered message loses the
// race and gets false back.
func (r *JobRepository) ClaimForAssessment(ctx context.Context, id domain.JobID) (bool, error) {
	const q = `
UPDATE verification_jobs
SET status=?, updated_at=?
WHERE id=? AND status=?;
`
	res, err := r.db.ExecContext(ctx, q,
		domain.StatusAssessing, time.Now().Unix(), id, domain.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	domain "github.com/veriscope/veriscope/internal/domain/jobs"
)

type LogRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append inserts one log entry. The table is append-only; entries are
// never updated.
func (r *LogRepository) Append(ctx context.Context, e domain.LogEntry) error {
	const q = `
INSERT INTO verification_job_logs (id, verification_job_id, ts, level, message)
VALUES (?,?,?,?,?);
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.JobID, e.Timestamp, e.Level, e.Message)
	return err
}

// Query returns a time-ordered page of a job's log, optionally filtered by
// level and message substring. The page token is the byte offset into the
// filtered result.
func (r *LogRepository) Query(ctx context.Context, id domain.JobID, q domain.LogQuery) (domain.LogPage, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := 0
	if q.PageToken != "" {
		n, err := strconv.Atoi(q.PageToken)
		if err != nil || n < 0 {
			return domain.LogPage{}, fmt.Errorf("invalid page token %q", q.PageToken)
		}
		offset = n
	}

	query := `
SELECT id, verification_job_id, ts, level, message
FROM verification_job_logs
WHERE verification_job_id=?`
	args := []interface{}{id}

	if q.Level != "" {
		query += " AND level = ?"
		args = append(args, q.Level)
	}
	if q.Contains != "" {
		query += " AND message LIKE ?"
		args = append(args, "%"+escapeLikePattern(q.Contains)+"%")
	}

	// Fetch one extra row to decide whether a next page exists.
	query += "\n ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.LogPage{}, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Timestamp, &e.Level, &e.Message); err != nil {
			return domain.LogPage{}, fmt.Errorf("scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.LogPage{}, err
	}

	page := domain.LogPage{Entries: entries}
	if len(entries) > pageSize {
		page.Entries = entries[:pageSize]
		page.NextPageToken = strconv.Itoa(offset + pageSize)
	}
	return page, nil
}

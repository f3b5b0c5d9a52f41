package mysql

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/veriscope/veriscope/internal/domain/jobs"
)

type FileCheckRepository struct {
	db *sql.DB
}

func NewFileCheckRepository(db *sql.DB) *FileCheckRepository {
	return &FileCheckRepository{db: db}
}

// Append inserts one per-rule per-file check record.
func (r *FileCheckRepository) Append(ctx context.Context, id domain.JobID, c domain.FileCheck) error {
	const q = `
INSERT INTO verification_file_checks
(verification_job_id, item_instance_id, file_instance_id, rule_id,
 status, status_reasoning, confidence, cost, input_tokens, output_tokens, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?);
`
	_, err := r.db.ExecContext(ctx, q,
		id, c.ItemInstanceID, c.FileInstanceID, c.RuleID,
		c.Status, c.StatusReasoning, c.Confidence, c.Cost,
		c.InputTokens, c.OutputTokens, c.CreatedAt,
	)
	return err
}

// ListForItem returns the check trail for one item instance, oldest first.
func (r *FileCheckRepository) ListForItem(ctx context.Context, id domain.JobID, itemInstanceID string) ([]domain.FileCheck, error) {
	const q = `
SELECT item_instance_id, file_instance_id, rule_id,
       status, status_reasoning, confidence, cost, input_tokens, output_tokens, created_at
FROM verification_file_checks
WHERE verification_job_id=? AND item_instance_id=?
ORDER BY created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, id, itemInstanceID)
	if err != nil {
		return nil, fmt.Errorf("querying file checks: %w", err)
	}
	defer rows.Close()

	var out []domain.FileCheck
	for rows.Next() {
		var c domain.FileCheck
		if err := rows.Scan(
			&c.ItemInstanceID, &c.FileInstanceID, &c.RuleID,
			&c.Status, &c.StatusReasoning, &c.Confidence, &c.Cost,
			&c.InputTokens, &c.OutputTokens, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteForJob clears the trail before a requeued job re-runs.
func (r *FileCheckRepository) DeleteForJob(ctx context.Context, id domain.JobID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_file_checks WHERE verification_job_id=?;`, id)
	return err
}

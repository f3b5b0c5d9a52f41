package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/veriscope/veriscope/internal/domain/llmconfig"
)

type LLMConfigRepository struct {
	db *sql.DB
}

func NewLLMConfigRepository(db *sql.DB) *LLMConfigRepository {
	return &LLMConfigRepository{db: db}
}

// Active returns the currently active value for a config type.
func (r *LLMConfigRepository) Active(ctx context.Context, configType string) (string, error) {
	const q = `
SELECT value FROM llm_config
WHERE config_type=? AND is_active=1
ORDER BY ts DESC LIMIT 1;
`
	var v string
	err := r.db.QueryRowContext(ctx, q, configType).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotSet
	}
	return v, err
}

// Save appends a new version and flips the active flag to it, in one
// transaction.
func (r *LLMConfigRepository) Save(ctx context.Context, e domain.Entry) (*domain.Entry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE llm_config SET is_active=0 WHERE config_type=?;`, e.Type); err != nil {
		return nil, fmt.Errorf("deactivating previous: %w", err)
	}

	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	e.Active = true
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO llm_config (config_type, ts, value, description, is_active) VALUES (?,?,?,?,1);`,
		e.Type, e.Timestamp, e.Value, e.Description); err != nil {
		return nil, fmt.Errorf("inserting version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &e, nil
}

// History returns recent versions of a config type, newest first.
func (r *LLMConfigRepository) History(ctx context.Context, configType string, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT config_type, ts, value, description, is_active
FROM llm_config
WHERE config_type=?
ORDER BY ts DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, configType, limit)
	if err != nil {
		return nil, fmt.Errorf("querying config history: %w", err)
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var desc sql.NullString
		if err := rows.Scan(&e.Type, &e.Timestamp, &e.Value, &desc, &e.Active); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Description = desc.String
		out = append(out, e)
	}
	return out, rows.Err()
}

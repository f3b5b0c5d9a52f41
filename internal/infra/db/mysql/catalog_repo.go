package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/veriscope/veriscope/internal/domain/catalog"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetItem by ID. Filtering rules are stored as JSON documents on the row.
func (r *CatalogRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	const q = `
SELECT id, created_at, updated_at, name, description,
       label_filtering_rules, description_filtering_rules, cluster_number, agent_ids
FROM items
WHERE id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)

	var it domain.Item
	var labelRules, descRules, agentIDs []byte
	var cluster sql.NullInt64
	if err := row.Scan(
		&it.ID, &it.CreatedAt, &it.UpdatedAt, &it.Name, &it.Description,
		&labelRules, &descRules, &cluster, &agentIDs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(labelRules) > 0 {
		if err := json.Unmarshal(labelRules, &it.LabelFilteringRules); err != nil {
			return nil, fmt.Errorf("unmarshal label rules: %w", err)
		}
	}
	if len(descRules) > 0 {
		if err := json.Unmarshal(descRules, &it.DescriptionFilteringRules); err != nil {
			return nil, fmt.Errorf("unmarshal description rules: %w", err)
		}
	}
	if len(agentIDs) > 0 {
		if err := json.Unmarshal(agentIDs, &it.AgentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal agent ids: %w", err)
		}
	}
	if cluster.Valid {
		n := int(cluster.Int64)
		it.ClusterNumber = &n
	}
	return &it, nil
}

// GetCollection loads the collection row plus its files and item links.
func (r *CatalogRepository) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	const q = `
SELECT id, created_at, updated_at, description, address
FROM collections
WHERE id=? LIMIT 1;
`
	var c domain.Collection
	var desc, addr sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.CreatedAt, &c.UpdatedAt, &desc, &addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Description = desc.String
	c.Address = addr.String

	const qf = `
SELECT id, created_at, storage_key, filename, content_type, size, description
FROM collection_files
WHERE collection_id=?
ORDER BY created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, qf, id)
	if err != nil {
		return nil, fmt.Errorf("querying collection files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f domain.CollectionFile
		var size sql.NullInt64
		var fdesc sql.NullString
		if err := rows.Scan(&f.ID, &f.CreatedAt, &f.StorageKey, &f.Filename,
			&f.ContentType, &size, &fdesc); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		f.Size = size.Int64
		f.Description = fdesc.String
		c.Files = append(c.Files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qi = `
SELECT item_id FROM collection_items WHERE collection_id=?;
`
	itemRows, err := r.db.QueryContext(ctx, qi, id)
	if err != nil {
		return nil, fmt.Errorf("querying collection items: %w", err)
	}
	defer itemRows.Close()
	var itemIDs []string
	for itemRows.Next() {
		var itemID string
		if err := itemRows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("scanning item link: %w", err)
		}
		itemIDs = append(itemIDs, itemID)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for _, itemID := range itemIDs {
		it, err := r.GetItem(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("loading item %s: %w", itemID, err)
		}
		c.Items = append(c.Items, *it)
	}
	return &c, nil
}

// GetAgent by ID
func (r *CatalogRepository) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	const q = `
SELECT id, created_at, updated_at, name, description, prompt, type,
       api_endpoint, knowledge_base_id, athena_database, athena_query
FROM agents
WHERE id=? LIMIT 1;
`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

// ListAgentsForItem returns the agents attached to an item, join-table
// ordered.
func (r *CatalogRepository) ListAgentsForItem(ctx context.Context, itemID string) ([]*domain.Agent, error) {
	const q = `
SELECT a.id, a.created_at, a.updated_at, a.name, a.description, a.prompt, a.type,
       a.api_endpoint, a.knowledge_base_id, a.athena_database, a.athena_query
FROM agents a
JOIN item_agents ia ON ia.agent_id = a.id
WHERE ia.item_id=?
ORDER BY a.created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying item agents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var a domain.Agent
	var desc, endpoint, kb, athenaDB, athenaQ sql.NullString
	if err := row.Scan(
		&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Name, &desc, &a.Prompt, &a.Type,
		&endpoint, &kb, &athenaDB, &athenaQ,
	); err != nil {
		return nil, err
	}
	a.Description = desc.String
	a.APIEndpoint = endpoint.String
	a.KnowledgeBaseID = kb.String
	a.AthenaDatabase = athenaDB.String
	a.AthenaQuery = athenaQ.String
	return &a, nil
}

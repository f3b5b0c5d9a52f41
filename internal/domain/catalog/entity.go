package catalog

// AgentType enum
type AgentType string

const (
	AgentKnowledgeBase AgentType = "Knowledge Base"
	AgentRestAPI       AgentType = "REST API"
	AgentAthena        AgentType = "Amazon Athena"
)

// Agent is a pluggable context-augmentation source. The type tag decides
// which locator fields apply.
type Agent struct {
	ID          string    `json:"id"`
	CreatedAt   int64     `json:"created_at"`
	UpdatedAt   int64     `json:"updated_at"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Prompt      string    `json:"prompt"`
	Type        AgentType `json:"type"`

	APIEndpoint     string `json:"api_endpoint,omitempty"`
	KnowledgeBaseID string `json:"knowledge_base_id,omitempty"`
	AthenaDatabase  string `json:"athena_database,omitempty"`
	AthenaQuery     string `json:"athena_query,omitempty"`
}

// LabelFilteringRule is a cheap exclusion filter: a file matching one of
// these is not relevant to the item.
type LabelFilteringRule struct {
	ID                  string   `json:"id"`
	ImageLabels         []string `json:"image_labels"`
	MinConfidence       float64  `json:"min_confidence"`
	MinImageSizePercent float64  `json:"min_image_size_percent"`
}

// DescriptionFilteringRule is an expensive inclusion criterion evaluated by
// the reasoning service.
type DescriptionFilteringRule struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	MinConfidence float64 `json:"min_confidence"`
	Mandatory     bool    `json:"mandatory"`
}

// Item bundles the verification criteria a collection is checked against.
type Item struct {
	ID                        string                     `json:"id"`
	CreatedAt                 int64                      `json:"created_at"`
	UpdatedAt                 int64                      `json:"updated_at"`
	Name                      string                     `json:"name"`
	Description               string                     `json:"description"`
	LabelFilteringRules       []LabelFilteringRule       `json:"label_filtering_rules"`
	DescriptionFilteringRules []DescriptionFilteringRule `json:"description_filtering_rules"`
	ClusterNumber             *int                       `json:"cluster_number,omitempty"`
	AgentIDs                  []string                   `json:"agent_ids,omitempty"`
}

// CollectionFile metadata for a stored file.
type CollectionFile struct {
	ID          string `json:"id"`
	CreatedAt   int64  `json:"created_at"`
	StorageKey  string `json:"storage_key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size,omitempty"`
	Description string `json:"description,omitempty"`
}

// Collection is the set of files to verify plus the items they are
// verified against.
type Collection struct {
	ID          string           `json:"id"`
	CreatedAt   int64            `json:"created_at"`
	UpdatedAt   int64            `json:"updated_at"`
	Description string           `json:"description,omitempty"`
	Address     string           `json:"address,omitempty"`
	Files       []CollectionFile `json:"files"`
	Items       []Item           `json:"items"`
}

package llmconfig

// Config types. One value of each type is active at a time; history is
// append-only.
const (
	TypeSystemPrompt     = "system_prompt"
	TypeSecondPassPrompt = "second_pass_prompt"
	TypeModelID          = "model_id"
	TypeSecondPass       = "second_pass"
)

// Entry is one versioned configuration value.
type Entry struct {
	Type        string `json:"config_type"`
	Timestamp   int64  `json:"timestamp"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"is_active"`
}

// Snapshot is the immutable configuration a single job execution runs
// with. Loaded once at dispatch and passed through the pipeline.
type Snapshot struct {
	SystemPrompt     string
	SecondPassPrompt string
	ModelID          string
	SecondPass       bool
}

package jobs

import (
	"context"
	"fmt"

	"github.com/veriscope/veriscope/internal/domain/llmconfig"
	"github.com/veriscope/veriscope/internal/domain/vision"
	"github.com/veriscope/veriscope/internal/infra/ai/prompt"
)

// DetectLabels is the dry-run behind the label-detect test endpoint: fetch
// one stored file and run it through the object-detection classifier.
func (s *Service) DetectLabels(ctx context.Context, storageKey string) ([]vision.Label, error) {
	data, err := s.Files.Get(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("fetching file %s: %w", storageKey, err)
	}
	return s.Detector.Detect(ctx, data)
}

type PromptTestCommand struct {
	Description  string   `json:"description"`
	StorageKeys  []string `json:"storage_keys"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// TestPrompt evaluates one description rule against ad-hoc files without
// creating a job, so operators can tune prompts cheaply.
func (s *Service) TestPrompt(ctx context.Context, cmd PromptTestCommand) (*vision.Assessment, error) {
	snap, err := llmconfig.Load(ctx, s.Config, llmconfig.Snapshot{
		SystemPrompt: prompt.GetSystemPrompt(),
	})
	if err != nil {
		return nil, fmt.Errorf("loading llm config: %w", err)
	}
	systemPrompt := snap.SystemPrompt
	if cmd.SystemPrompt != "" {
		systemPrompt = cmd.SystemPrompt
	}
	model := snap.ModelID
	if cmd.Model != "" {
		model = cmd.Model
	}

	sources := make([]vision.GridSource, 0, len(cmd.StorageKeys))
	for i, key := range cmd.StorageKeys {
		data, err := s.Files.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetching file %s: %w", key, err)
		}
		sources = append(sources, vision.GridSource{FileID: fmt.Sprintf("test-%d", i), Data: data})
	}
	grids, err := s.Grids.Build(sources, len(sources))
	if err != nil {
		return nil, fmt.Errorf("composing grid: %w", err)
	}

	return s.Assessor.Assess(ctx, vision.AssessRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		UserText:     prompt.GetRuleUserPrompt("prompt test", cmd.Description, nil),
		Grids:        grids,
	})
}

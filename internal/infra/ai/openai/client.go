package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/veriscope/veriscope/internal/domain/vision"
)

const maxTokens = 2048

type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// assessReply is the structured output schema the system prompt demands.
type assessReply struct {
	ImageFound bool     `json:"image_found"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	MatchedIDs []string `json:"matched_ids"`
}

// Assess sends the rule text plus the composite grids to the
// vision-language model and parses the structured verdict.
func (c *Client) Assess(ctx context.Context, req vision.AssessRequest) (*vision.Assessment, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = "gpt-4o"
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: req.UserText},
	}
	for _, g := range req.Grids {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(g.JPEG),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if isTransient(err) {
			return nil, fmt.Errorf("%w: %v", vision.ErrThrottled, err)
		}
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", vision.ErrThrottled)
	}

	var reply assessReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		// Schema violations are retried like throttles: the next attempt
		// usually produces valid JSON.
		return nil, fmt.Errorf("%w: parsing reply: %v", vision.ErrThrottled, err)
	}

	conf := reply.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	// Translate grid cell IDs back to file ids. Unknown cell IDs are
	// dropped rather than surfaced.
	var fileIDs []string
	for _, cellID := range reply.MatchedIDs {
		for _, g := range req.Grids {
			if fileID, ok := g.Positions[cellID]; ok {
				fileIDs = append(fileIDs, fileID)
				break
			}
		}
	}

	return &vision.Assessment{
		ImageFound:     reply.ImageFound,
		Confidence:     conf,
		Reasoning:      reply.Reasoning,
		MatchedFileIDs: fileIDs,
		InputTokens:    resp.Usage.PromptTokens,
		OutputTokens:   resp.Usage.CompletionTokens,
		Cost:           CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// Network-level failures (timeouts, resets) arrive as plain errors.
	return errors.Is(err, context.DeadlineExceeded)
}

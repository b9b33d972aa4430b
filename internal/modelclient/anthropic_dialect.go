package modelclient

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicDialect speaks dialect A (spec.md §4.2) directly against the
// Anthropic API via the official SDK, which already encodes the legacy
// wire shape — a flat message array with string content and a top-level
// system string.
type anthropicDialect struct {
	client *anthropic.Client
}

func newAnthropicDialect(apiKey string) *anthropicDialect {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicDialect{client: &client}
}

func (a *anthropicDialect) generate(ctx context.Context, modelID string, req GenerateRequest) (string, TokenUsage, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages:    toAnthropicMessages(req.Messages),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("modelclient: anthropic call: %w", err)
	}

	usage := TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return extractDialectAText(msg.Content), usage, nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

// extractDialectAText pulls text out of a dialect-A content block list,
// per the "try dialect-B paths first, then dialect-A" order spec.md §4.2
// mandates for the shared extractor — this is the dialect-A half.
func extractDialectAText(blocks []anthropic.ContentBlockUnion) string {
	for _, block := range blocks {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

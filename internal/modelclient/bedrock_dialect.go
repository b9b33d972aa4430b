package modelclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockDialect speaks dialect B (spec.md §4.2) against AWS Bedrock's
// Converse API, which already encodes the structured wire shape —
// content as a list of typed blocks, inference parameters nested under
// inferenceConfig, system as a list of blocks.
type bedrockDialect struct {
	client *bedrockruntime.Client
}

func newBedrockDialect(client *bedrockruntime.Client) *bedrockDialect {
	return &bedrockDialect{client: client}
}

func (b *bedrockDialect) generate(ctx context.Context, modelID string, req GenerateRequest) (string, TokenUsage, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: toBedrockMessages(req.Messages),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("modelclient: bedrock converse call: %w", err)
	}

	usage := TokenUsage{}
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return extractConverseText(out.Output), usage, nil
}

func toBedrockMessages(messages []Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

// extractConverseText pulls text from a Converse response's
// output.message.content path — the second of the two dialect-B shapes
// spec.md §4.2 names (the first, a bare top-level content:[...], is
// what a raw bedrock-runtime InvokeModel body returns instead of
// Converse; extractDialectBJSON in extractor.go handles that shape for
// callers that go through the raw invoke path rather than this client).
func extractConverseText(output types.ConverseOutput) string {
	msgOutput, ok := output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msgOutput.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			return textBlock.Value
		}
	}
	return ""
}

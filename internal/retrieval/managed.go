package retrieval

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

// ManagedBackend implements the managed retrieval path (spec.md §4.3): a
// single call to a backend that returns scored passages directly,
// backed here by an Amazon Bedrock knowledge base's Retrieve operation.
type ManagedBackend struct {
	client          *bedrockagentruntime.Client
	knowledgeBaseID string
	executor        *resilience.Executor
}

// NewManagedBackend constructs a ManagedBackend.
func NewManagedBackend(client *bedrockagentruntime.Client, knowledgeBaseID string) *ManagedBackend {
	breaker := resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceEmbedding, nil))
	retry := resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceEmbedding, nil))
	return &ManagedBackend{
		client:          client,
		knowledgeBaseID: knowledgeBaseID,
		executor:        resilience.NewExecutor(resilience.WithCircuitBreaker(breaker), resilience.WithRetry(retry)),
	}
}

// Search implements Client.
func (b *ManagedBackend) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]DocumentChunk, error) {
	var out *bedrockagentruntime.RetrieveOutput
	err := b.executor.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = b.client.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
			KnowledgeBaseId: aws.String(b.knowledgeBaseID),
			RetrievalQuery: &types.KnowledgeBaseQuery{
				Text: aws.String(queryText),
			},
			RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
				VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
					NumberOfResults: aws.Int32(int32(limit)),
				},
			},
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: managed retrieve call: %w", err)
	}

	results := make([]DocumentChunk, 0, len(out.RetrievalResults))
	for _, r := range out.RetrievalResults {
		score := clamp01(aws.ToFloat64(r.Score))
		if score < threshold {
			continue
		}
		results = append(results, DocumentChunk{
			Source:  sourceFromLocation(r.Location),
			Content: contentText(r.Content),
			Score:   score,
		})
	}
	return results, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func contentText(c *types.RetrievalResultContent) string {
	if c == nil {
		return ""
	}
	return aws.ToString(c.Text)
}

func sourceFromLocation(loc *types.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	if loc.S3Location != nil {
		return aws.ToString(loc.S3Location.Uri)
	}
	if loc.WebLocation != nil {
		return aws.ToString(loc.WebLocation.Url)
	}
	return ""
}

var _ Client = (*ManagedBackend)(nil)

package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

// Embedder is the narrow embedding-endpoint surface internal/retrieval's
// manual backend calls (spec.md §4.3).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BedrockEmbedder embeds text via a Bedrock embedding model (e.g. an
// Amazon Titan Embeddings model) using the raw InvokeModel operation —
// embedding models are not exposed through the Converse API, so this
// bypasses bedrockDialect and talks the model's native request/response
// JSON body directly.
type BedrockEmbedder struct {
	client   *bedrockruntime.Client
	modelID  string
	executor *resilience.Executor
}

// NewBedrockEmbedder constructs a BedrockEmbedder wrapped in the
// embedding service's resilience profile.
func NewBedrockEmbedder(client *bedrockruntime.Client, modelID string) *BedrockEmbedder {
	breaker := resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceEmbedding, nil))
	retry := resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceEmbedding, nil))
	return &BedrockEmbedder{
		client:   client,
		modelID:  modelID,
		executor: resilience.NewExecutor(resilience.WithCircuitBreaker(breaker), resilience.WithRetry(retry)),
	}
}

type embedRequestBody struct {
	InputText string `json:"inputText"`
}

type embedResponseBody struct {
	Embedding []float64 `json:"embedding"`
}

// Embed implements Embedder.
func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequestBody{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("modelclient: marshal embed request: %w", err)
	}

	var vector []float64
	err = e.executor.Execute(ctx, func(ctx context.Context) error {
		out, invokeErr := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if invokeErr != nil {
			return invokeErr
		}
		var parsed embedResponseBody
		if decodeErr := json.NewDecoder(bytes.NewReader(out.Body)).Decode(&parsed); decodeErr != nil {
			return fmt.Errorf("modelclient: decode embed response: %w", decodeErr)
		}
		vector = parsed.Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("modelclient: embed call: %w", err)
	}
	return vector, nil
}
